// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/advisory"
	"github.com/pdiddy/image-tree/internal/artifact"
	"github.com/pdiddy/image-tree/internal/jobspec"
	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/internal/orchestrator"
	"github.com/pdiddy/image-tree/internal/store"
	"github.com/pdiddy/image-tree/internal/synthesis"
	"github.com/pdiddy/image-tree/internal/tree"
	"github.com/pdiddy/image-tree/pkg/types"
)

// app holds the components wired from one configuration.
type app struct {
	cfg       types.AppConfig
	logger    *zap.Logger
	store     store.Store
	artifacts *artifact.Store
	manager   *tree.Manager
}

// newApp loads configuration, applies generation flags when cmd defines
// them, and wires every component.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Lookup("preset") != nil {
		if err := applyGenerationFlags(cmd, &cfg); err != nil {
			return nil, err
		}
	}
	// Fail fast on bad generation parameters rather than on the first job.
	if _, err := jobspec.FromConfig("validate", cfg.Generation); err != nil {
		return nil, err
	}
	return wire(ctx, cfg)
}

func wire(ctx context.Context, cfg types.AppConfig) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	gateway, err := advisory.New(ctx, cfg.Advisory, logger.Named("advisory"))
	if err != nil {
		st.Close()
		return nil, err
	}
	keywords := advisory.WithKeywordCache(gateway, st, logger.Named("advisory"))

	var evaluator orchestrator.Evaluator
	if !cfg.Quality.SkipEvaluation {
		evaluator = gateway
	}

	synth := synthesis.New(cfg.Synthesis, logger.Named("synthesis"))
	artifacts := artifact.New(cfg.Artifacts.Dir)
	orch := orchestrator.New(
		jobspec.NewBuilder(cfg.Synthesis.Models),
		synth,
		evaluator,
		artifacts,
		orchestrator.Config{
			Generation:  cfg.Generation,
			Quality:     cfg.Quality,
			PollTimeout: synth.PollTimeout(),
		},
		logger.Named("orchestrator"),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		artifacts: artifacts,
		manager:   tree.New(st, orch, keywords, cfg.Tree, logger.Named("tree")),
	}, nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() error {
	err := a.store.Close()
	_ = a.logger.Sync()
	return err
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/image-tree/internal/advisory"
	"github.com/pdiddy/image-tree/internal/artifact"
	"github.com/pdiddy/image-tree/internal/jobspec"
	"github.com/pdiddy/image-tree/internal/orchestrator"
	"github.com/pdiddy/image-tree/internal/server"
	"github.com/pdiddy/image-tree/internal/store"
	"github.com/pdiddy/image-tree/internal/synthesis"
	"github.com/pdiddy/image-tree/internal/tree"
	"github.com/pdiddy/image-tree/pkg/types"
)

// setDefaults registers every configuration key so that environment
// variables can override keys absent from the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("synthesis.base_url", synthesis.DefaultBaseURL)
	v.SetDefault("synthesis.timeout", "60s")
	v.SetDefault("synthesis.user_agent", "image-tree/"+version)
	v.SetDefault("synthesis.poll_interval", synthesis.DefaultPollInterval)
	v.SetDefault("synthesis.poll_timeout", synthesis.DefaultPollTimeout)
	v.SetDefault("synthesis.max_retries", 3)

	models := jobspec.DefaultModels()
	v.SetDefault("synthesis.models.clip", models.CLIP)
	v.SetDefault("synthesis.models.clip_type", models.CLIPType)
	v.SetDefault("synthesis.models.vae", models.VAE)
	v.SetDefault("synthesis.models.unet", models.UNET)
	v.SetDefault("synthesis.models.sampler", models.Sampler)
	v.SetDefault("synthesis.models.scheduler", models.Scheduler)

	v.SetDefault("generation.preset", "")
	v.SetDefault("generation.steps", 9)
	v.SetDefault("generation.guidance", 1.0)
	v.SetDefault("generation.width", 1536)
	v.SetDefault("generation.height", 1536)
	v.SetDefault("generation.seed", 0)

	v.SetDefault("quality.threshold", 7.0)
	v.SetDefault("quality.accuracy_threshold", 0.0)
	v.SetDefault("quality.max_iterations", orchestrator.DefaultMaxIterations)
	v.SetDefault("quality.skip_evaluation", false)
	v.SetDefault("quality.refine_prompt", false)

	v.SetDefault("advisory.provider", string(types.ProviderOllama))
	v.SetDefault("advisory.base_url", "")
	v.SetDefault("advisory.api_key", "")
	v.SetDefault("advisory.model", "gemma3:12b")
	v.SetDefault("advisory.max_tokens", 4000)
	v.SetDefault("advisory.temperature", 0.7)
	v.SetDefault("advisory.timeout", advisory.DefaultTimeout)
	v.SetDefault("advisory.max_retries", 3)
	v.SetDefault("advisory.rate_limit", 2.0)

	v.SetDefault("tree.workers", tree.DefaultWorkers)
	v.SetDefault("tree.max_branches", tree.DefaultMaxBranches)

	v.SetDefault("store.backend", string(types.StoreSQLite))
	v.SetDefault("store.path", store.DefaultPath)
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.keyword_ttl", "0s")

	v.SetDefault("artifacts.dir", artifact.DefaultDir)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.host", server.DefaultHost)
	v.SetDefault("server.port", server.DefaultPort)
}

// loadConfig decodes v into an AppConfig and fills API keys from secrets.
func loadConfig(v *viper.Viper, keys keySource) (types.AppConfig, error) {
	var cfg types.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: decoding config: %v", types.ErrConfiguration, err)
	}
	if keys != nil {
		keys.ApplyAdvisory(&cfg.Advisory)
	}
	return cfg, nil
}

// keySource fills API keys the config leaves empty.
type keySource interface {
	ApplyAdvisory(cfg *types.AdvisoryConfig)
}

// addGenerationFlags registers the flags shared by every command that runs
// generation. Set flags override config values.
func addGenerationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("preset", "", "generation preset: draft, standard, high, portrait, landscape")
	f.Int("steps", 0, "sampling steps")
	f.Float64("guidance", 0, "guidance strength")
	f.String("size", "", "output size as WIDTHxHEIGHT")
	f.Int64("seed", 0, "sampler seed (0 = random per attempt)")
	f.Float64("threshold", 0, "minimum accepted quality score (0-10)")
	f.Int("max-iterations", 0, "maximum generation attempts per node")
	f.Bool("skip-evaluation", false, "accept the first artifact without scoring")
	f.Bool("refine", false, "refine the prompt between attempts from evaluation feedback")
}

// applyGenerationFlags overrides cfg with the flags the user set.
func applyGenerationFlags(cmd *cobra.Command, cfg *types.AppConfig) error {
	f := cmd.Flags()
	if f.Changed("preset") {
		cfg.Generation.Preset, _ = f.GetString("preset")
	}
	if f.Changed("steps") {
		cfg.Generation.Steps, _ = f.GetInt("steps")
	}
	if f.Changed("guidance") {
		cfg.Generation.Guidance, _ = f.GetFloat64("guidance")
	}
	if f.Changed("size") {
		size, _ := f.GetString("size")
		w, h, err := jobspec.ParseSize(size)
		if err != nil {
			return err
		}
		cfg.Generation.Width, cfg.Generation.Height = w, h
	}
	if f.Changed("seed") {
		cfg.Generation.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("threshold") {
		cfg.Quality.Threshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("max-iterations") {
		cfg.Quality.MaxIterations, _ = f.GetInt("max-iterations")
	}
	if f.Changed("skip-evaluation") {
		cfg.Quality.SkipEvaluation, _ = f.GetBool("skip-evaluation")
	}
	if f.Changed("refine") {
		cfg.Quality.RefinePrompt, _ = f.GetBool("refine")
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/pkg/types"
)

// NewBackend returns the Backend selected by cfg.Provider. An empty provider
// means ollama.
func NewBackend(ctx context.Context, cfg types.AdvisoryConfig) (Backend, error) {
	httpClient := &http.Client{}
	switch cfg.Provider {
	case "", types.ProviderOllama:
		b, err := NewOllamaBackend(cfg, httpClient)
		if err != nil {
			return nil, err
		}
		return b, nil
	case types.ProviderOpenAI, types.ProviderOpenRouter, types.ProviderOpenAICompatible:
		b, err := NewChatBackend(ctx, cfg, httpClient)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: unsupported advisory provider %q", types.ErrConfiguration, cfg.Provider)
}

// New builds the configured provider wrapped with request timeouts, retry
// and rate limiting.
func New(ctx context.Context, cfg types.AdvisoryConfig, logger *zap.Logger) (Gateway, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	g := NewGateway(backend, cfg.Timeout, logger)
	return WithRetry(g, RetryOptions{
		MaxRetries: cfg.MaxRetries,
		RateLimit:  cfg.RateLimit,
		Logger:     logger,
	}), nil
}

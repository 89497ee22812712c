// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"context"

	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/internal/metrics"
)

// KeywordCache stores keyword extractions by prompt.
type KeywordCache interface {
	CachedKeywords(ctx context.Context, prompt string) ([]string, bool, error)
	CacheKeywords(ctx context.Context, prompt string, keywords []string) error
}

type cached struct {
	Gateway
	cache  KeywordCache
	logger *zap.Logger
}

// WithKeywordCache serves ExtractKeywords from cache when possible and
// stores fresh extractions. Cache failures are logged and never fail the
// call. ScoreQuality passes through.
func WithKeywordCache(next Gateway, cache KeywordCache, logger *zap.Logger) Gateway {
	return &cached{Gateway: next, cache: cache, logger: logging.OrNop(logger)}
}

func (c *cached) ExtractKeywords(ctx context.Context, prompt string) ([]string, error) {
	keywords, ok, err := c.cache.CachedKeywords(ctx, prompt)
	if err != nil {
		c.logger.Warn("keyword cache read failed", zap.Error(err))
	} else if ok && len(keywords) > 0 {
		metrics.AdvisoryRequests.WithLabelValues("keywords", "cached").Inc()
		return NormalizeKeywords(keywords), nil
	}

	keywords, err = c.Gateway.ExtractKeywords(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if err := c.cache.CacheKeywords(ctx, prompt, keywords); err != nil {
		c.logger.Warn("keyword cache write failed", zap.Error(err))
	}
	return keywords, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/pkg/types"
)

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

const defaultMaxRetries = 3

// RetryOptions configures WithRetry.
type RetryOptions struct {
	// MaxRetries bounds retries after the first call (default 3).
	MaxRetries int

	// RateLimit is the sustained calls per second shared by every caller of
	// the decorated gateway. Zero disables limiting.
	RateLimit float64

	Logger *zap.Logger
}

type retrying struct {
	next       Gateway
	maxRetries int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// WithRetry retries calls that fail with types.ErrAdvisoryUnavailable using
// exponential backoff, and spaces calls through a token-bucket limiter.
// Other errors are returned at once.
func WithRetry(next Gateway, opts RetryOptions) Gateway {
	r := &retrying{
		next:       next,
		maxRetries: opts.MaxRetries,
		logger:     logging.OrNop(opts.Logger),
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if opts.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(math.Ceil(opts.RateLimit))))
	}
	return r
}

func (r *retrying) ExtractKeywords(ctx context.Context, prompt string) ([]string, error) {
	var out []string
	err := r.do(ctx, "keywords", func() error {
		var err error
		out, err = r.next.ExtractKeywords(ctx, prompt)
		return err
	})
	return out, err
}

func (r *retrying) ScoreQuality(ctx context.Context, artifact []byte, prompt string) (Evaluation, error) {
	var out Evaluation
	err := r.do(ctx, "score", func() error {
		var err error
		out, err = r.next.ScoreQuality(ctx, artifact, prompt)
		return err
	})
	return out, err
}

func (r *retrying) do(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			r.logger.Debug("retrying advisory call",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: rate limiter: %v", types.ErrAdvisoryUnavailable, err)
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, types.ErrAdvisoryUnavailable) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}

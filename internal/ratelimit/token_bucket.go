package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket paces requests with golang.org/x/time/rate.
type TokenBucket struct {
	limiter *rate.Limiter
	config  Config
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(cfg Config) *TokenBucket {
	cfg = WithDefaults(cfg)
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		config:  cfg,
	}
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// RetryAfter returns the backoff for a failed attempt.
func (tb *TokenBucket) RetryAfter(attempt int) time.Duration {
	return CalculateBackoff(attempt, tb.config)
}

package ratelimit

import (
	"context"
	"time"
)

// Limiter paces outbound calls to one upstream and spaces out retries.
type Limiter interface {
	// Wait blocks until the next request may go out.
	Wait(ctx context.Context) error
	// RetryAfter is the pause before retry number attempt, counted from 1.
	RetryAfter(attempt int) time.Duration
}

// Strategy selects the pacing algorithm.
type Strategy string

const (
	StrategyTokenBucket Strategy = "token_bucket"
	StrategyFixedDelay  Strategy = "fixed_delay"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyTokenBucket || s == StrategyFixedDelay
}

// NewLimiter builds the limiter cfg asks for, with unset fields defaulted.
func NewLimiter(cfg Config) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = WithDefaults(cfg)
	if cfg.Strategy == StrategyFixedDelay {
		return NewFixedDelayLimiter(cfg), nil
	}
	return NewTokenBucket(cfg), nil
}

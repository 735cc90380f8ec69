package ratelimit

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxBackoffExponent keeps the doubling from overflowing before MaxBackoff
// clamps it.
const maxBackoffExponent = 30

// CalculateBackoff computes the pause before retry number attempt:
// InitialBackoff grown by BackoffMultiplier per attempt, capped at
// MaxBackoff, with +/-25% jitter.
func CalculateBackoff(attempt int, cfg Config) time.Duration {
	if attempt <= 0 {
		return 0
	}

	exp := math.Min(float64(attempt-1), maxBackoffExponent)
	base := math.Min(float64(cfg.InitialBackoff)*math.Pow(cfg.BackoffMultiplier, exp), float64(cfg.MaxBackoff))

	backoff := base + base*0.25*(2*rand.Float64()-1)
	return time.Duration(math.Max(0, math.Min(backoff, float64(cfg.MaxBackoff))))
}

// ShouldRetry reports whether retry number attempt, counted from 1, fits in
// the maxRetries budget.
func ShouldRetry(attempt int, maxRetries int) bool {
	return attempt >= 1 && attempt <= maxRetries
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as
// an HTTP date. It returns zero when the header is absent or unusable.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

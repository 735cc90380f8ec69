package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedDelayLimiter hands out request slots at least FixedDelay apart. A
// caller that takes a slot owns it even if it cancels while waiting.
type FixedDelayLimiter struct {
	mu     sync.Mutex
	next   time.Time
	config Config
	now    func() time.Time
}

// NewFixedDelayLimiter creates a limiter whose first slot is free.
func NewFixedDelayLimiter(cfg Config) *FixedDelayLimiter {
	return &FixedDelayLimiter{config: WithDefaults(cfg), now: time.Now}
}

// take claims the next slot at or after now and returns how far away it is.
func (l *FixedDelayLimiter) take() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slot := now
	if l.next.After(now) {
		slot = l.next
	}
	l.next = slot.Add(l.config.FixedDelay)
	return slot.Sub(now)
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (l *FixedDelayLimiter) Wait(ctx context.Context) error {
	wait := l.take()
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryAfter returns the backoff before retry attempt.
func (l *FixedDelayLimiter) RetryAfter(attempt int) time.Duration {
	return CalculateBackoff(attempt, l.config)
}

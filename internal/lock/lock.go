// Package lock serializes sync runs across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"github.com/mkoziy/contratos/crmsync/internal/logger"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock held by another process")

// Release frees an acquired lock.
type Release func(ctx context.Context) error

// Locker hands out exclusive leases by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Noop grants every request. It is used when no redis is configured and a
// single process runs syncs.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// Redis is a Locker over redislock. Leases are refreshed in the background
// at half their TTL until released, so long runs keep the lock.
type Redis struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedis creates a redis locker. Keys are namespaced with prefix.
func NewRedis(client redislock.RedisClient, prefix string, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = logger.Default()
	}
	return &Redis{
		client: redislock.New(client),
		prefix: prefix,
		ttl:    ttl,
		log:    log.WithComponent("lock"),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	full := r.prefix + key
	l, err := r.client.Obtain(ctx, full, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", full, err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := l.Refresh(context.Background(), r.ttl, nil); err != nil {
					r.log.Warnw("lock refresh failed", "key", full, "error", err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			wg.Wait()
			err = l.Release(ctx)
			if errors.Is(err, redislock.ErrLockNotHeld) {
				err = nil
			}
		})
		return err
	}, nil
}

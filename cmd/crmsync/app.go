package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/config"
	"github.com/mkoziy/contratos/crmsync/internal/contracts"
	"github.com/mkoziy/contratos/crmsync/internal/database"
	"github.com/mkoziy/contratos/crmsync/internal/lock"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/migrations"
	"github.com/mkoziy/contratos/crmsync/internal/notify"
	"github.com/mkoziy/contratos/crmsync/internal/overlay"
	"github.com/mkoziy/contratos/crmsync/internal/ratelimit"
	"github.com/mkoziy/contratos/crmsync/internal/reconcile"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
	"github.com/mkoziy/contratos/crmsync/internal/runlog"
	"github.com/mkoziy/contratos/crmsync/internal/salesview"
	"github.com/mkoziy/contratos/crmsync/internal/sources/crm"
	"github.com/mkoziy/contratos/crmsync/internal/syncer"
)

// app holds the wired services for one command invocation.
type app struct {
	db    *bun.DB
	redis *redis.Client

	runs      *runlog.Log
	sync      *syncer.Orchestrator
	sales     *salesview.Service
	contracts *contracts.Service
}

// newApp opens the database, applies pending migrations and wires every
// service from cfg.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: db}

	group, err := migrations.RunMigrations(ctx, db)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if !group.IsZero() {
		log.Infow("migrations applied", "group", group.String())
	}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	salesRepo := repositories.NewSaleRepository(db)

	ov, err := a.overlay(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.Noop{}
	if a.redis != nil {
		locker = lock.NewRedis(a.redis, cfg.Redis.LockPrefix, cfg.Redis.LockTTL, log)
	}

	limiter, err := ratelimit.NewLimiter(cfg.RateLimit)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	client := crm.NewClient(cfg.CRM, limiter, cfg.RateLimit.MaxRetries)
	fetcher := crm.NewFetcher(client, log)

	a.runs = runlog.New(repositories.NewSyncRunRepository(db), loc)
	a.sync = syncer.New(fetcher, ov, reconcile.NewEngine(salesRepo, log), a.runs, locker, syncer.Options{
		BatchSize:           cfg.Sync.BatchSize,
		FetchTimeout:        cfg.Sync.FetchTimeout,
		RunTimeout:          cfg.Sync.RunTimeout,
		AutoSuppressSameDay: cfg.Sync.AutoSuppressSameDay,
		DefaultWindow:       cfg.Sync.DefaultWindow,
		Location:            loc,
	}, log)

	a.sales = salesview.NewService(salesRepo, ov, log)
	a.contracts = contracts.NewService(
		repositories.NewContractRepository(db),
		a.sales,
		notify.NewLogNotifier(log.With("channel", "customer")),
		notify.NewLogNotifier(log.With("channel", "internal")),
		cfg.Notify.InternalCopyTo,
		log,
	)
	return a, nil
}

func (a *app) overlay(cfg *config.Config) (overlay.Overlay, error) {
	switch cfg.Overlay.Backend {
	case overlay.BackendMemory:
		return overlay.NewMemory(), nil
	case overlay.BackendRedis:
		if a.redis == nil {
			return nil, errors.New("redis overlay requires redis.addr")
		}
		return overlay.NewRedis(a.redis, cfg.Overlay.RedisKey), nil
	default:
		return overlay.NewStore(repositories.NewSoftDeleteRepository(a.db)), nil
	}
}

// Close releases the database and redis connections.
func (a *app) Close() error {
	if a.sync != nil {
		a.sync.Close()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

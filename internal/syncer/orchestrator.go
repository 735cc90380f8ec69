// Package syncer drives one CRM synchronization run end to end.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/mkoziy/contratos/crmsync/internal/lock"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/overlay"
	"github.com/mkoziy/contratos/crmsync/internal/reconcile"
	"github.com/mkoziy/contratos/crmsync/internal/runlog"
)

const tracerName = "github.com/mkoziy/contratos/crmsync/internal/syncer"

// Window names accepted for Options.DefaultWindow.
const (
	WindowCurrentMonthToDate = "currentMonthToDate"
	WindowToday              = "today"
)

// Reasons reported on skipped results.
const (
	ReasonAlreadyCompleted = "already_completed"
	ReasonLocked           = "locked"
	ReasonInProgress       = "in_progress"
)

// LockKey is the lease name shared by every sync run.
const LockKey = "sync"

// Source fetches sales dated within a window.
type Source interface {
	FetchSales(ctx context.Context, from, to time.Time) ([]*models.Sale, error)
}

// Reconciler writes sales into the mirror in batches.
type Reconciler interface {
	ReconcileAll(ctx context.Context, records []*models.Sale, batchSize int) (reconcile.Counts, error)
}

// RunLog records run lifecycles.
type RunLog interface {
	Start(ctx context.Context, p runlog.StartParams) (*models.SyncRun, error)
	Complete(ctx context.Context, run *models.SyncRun, c runlog.Counts) error
	Fail(ctx context.Context, run *models.SyncRun, c runlog.Counts, cause error) error
	CompletedOn(ctx context.Context, syncType models.SyncType, day string) (bool, error)
	LatestCompleted(ctx context.Context) (*models.SyncRun, error)
	Latest(ctx context.Context) (*models.SyncRun, error)
}

// Options tune the orchestrator. RunTimeout bounds a whole run, which
// outlives any single caller's context.
type Options struct {
	BatchSize           int
	FetchTimeout        time.Duration
	RunTimeout          time.Duration
	AutoSuppressSameDay bool
	DefaultWindow       string
	Location            *time.Location
}

// Request asks for one run. Nil From/To fall back to the default window.
type Request struct {
	Type  models.SyncType
	From  *time.Time
	To    *time.Time
	Force bool
}

// Result summarizes a run, or why none happened.
type Result struct {
	RunID     string          `json:"run_id,omitempty"`
	Type      models.SyncType `json:"sync_type"`
	From      string          `json:"date_from,omitempty"`
	To        string          `json:"date_to,omitempty"`
	Processed int             `json:"processed"`
	New       int             `json:"new"`
	Updated   int             `json:"updated"`
	Hidden    int             `json:"hidden"`
	Skipped   bool            `json:"skipped"`
	Reason    string          `json:"reason,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Status describes the run log as seen today.
type Status struct {
	Today              string          `json:"today"`
	AutoCompletedToday bool            `json:"auto_completed_today"`
	LastRun            *models.SyncRun `json:"last_run,omitempty"`
	LastCompleted      *models.SyncRun `json:"last_completed,omitempty"`
}

// Orchestrator coordinates source, overlay, engine and run log.
type Orchestrator struct {
	source  Source
	overlay overlay.Overlay
	engine  Reconciler
	runs    RunLog
	locker  lock.Locker
	opts    Options
	log     *logger.Logger
	tracer  trace.Tracer
	group   singleflight.Group
	now     func() time.Time

	stop     context.Context
	stopRuns context.CancelFunc
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates an orchestrator. A nil locker means no cross-process locking.
func New(source Source, ov overlay.Overlay, engine Reconciler, runs RunLog, locker lock.Locker, opts Options, log *logger.Logger) *Orchestrator {
	if locker == nil {
		locker = lock.Noop{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Minute
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Minute
	}
	if opts.DefaultWindow == "" {
		opts.DefaultWindow = WindowCurrentMonthToDate
	}
	if log == nil {
		log = logger.Default()
	}
	stop, stopRuns := context.WithCancel(context.Background())
	return &Orchestrator{
		source:   source,
		overlay:  ov,
		engine:   engine,
		runs:     runs,
		locker:   locker,
		opts:     opts,
		log:      log.WithComponent("syncer"),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		stop:     stop,
		stopRuns: stopRuns,
	}
}

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// RunSync performs one sync. Identical concurrent requests in this process
// share a single execution. The shared run is detached from the callers'
// cancellation; a caller whose ctx ends stops waiting, the run goes on.
func (o *Orchestrator) RunSync(ctx context.Context, req Request) (*Result, error) {
	if req.Type == "" {
		req.Type = models.SyncAuto
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown sync type %q", req.Type)
	}

	ch := o.group.DoChan(flightKey(req), func() (any, error) {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, ErrClosed
		}
		o.inflight.Add(1)
		o.mu.Unlock()
		defer o.inflight.Done()

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.RunTimeout)
		defer cancel()
		defer context.AfterFunc(o.stop, cancel)()
		return o.run(rctx, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(*Result)
		if res != nil {
			cp := *res
			res = &cp
		}
		return res, r.Err
	}
}

// Close stops new runs, cancels the ones in flight and waits until each has
// recorded its outcome.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.stopRuns()
	o.inflight.Wait()
}

func flightKey(req Request) string {
	var b strings.Builder
	b.WriteString(string(req.Type))
	for _, t := range []*time.Time{req.From, req.To} {
		b.WriteByte('|')
		if t != nil {
			b.WriteString(t.UTC().Format(time.RFC3339))
		}
	}
	if req.Force {
		b.WriteString("|force")
	}
	return b.String()
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Result, error) {
	now := o.now()
	today := models.FormatDay(now.In(o.opts.Location))
	log := o.log.With("sync_type", req.Type, "forced", req.Force)

	if !req.Force && o.opts.AutoSuppressSameDay {
		done, err := o.runs.CompletedOn(ctx, req.Type, today)
		if err != nil {
			return nil, &RunError{Kind: ErrRunLogWrite, Err: err}
		}
		if done {
			log.Infow("sync already completed today", "day", today)
			return &Result{Type: req.Type, Skipped: true, Reason: ReasonAlreadyCompleted}, nil
		}
	}

	release, err := o.locker.Acquire(ctx, LockKey)
	if errors.Is(err, lock.ErrHeld) {
		log.Infow("sync lock held elsewhere")
		return &Result{Type: req.Type, Skipped: true, Reason: ReasonLocked}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warnw("release sync lock", "error", err)
		}
	}()

	from, to, err := o.window(ctx, req, now)
	if err != nil {
		return nil, err
	}

	run, err := o.runs.Start(ctx, runlog.StartParams{
		Type:     req.Type,
		From:     from,
		To:       to,
		Forced:   req.Force,
		Suppress: o.opts.AutoSuppressSameDay,
	})
	if errors.Is(err, runlog.ErrAlreadyRunning) {
		log.Infow("automatic sync already running today")
		return &Result{Type: req.Type, Skipped: true, Reason: ReasonInProgress}, nil
	}
	if err != nil {
		return nil, &RunError{Kind: ErrRunLogWrite, Err: err}
	}

	log = log.With("run_id", run.RunID)
	ctx, span := o.tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("sync.run_id", run.RunID),
		attribute.String("sync.type", string(req.Type)),
		attribute.String("sync.from", run.DateFrom),
		attribute.String("sync.to", run.DateTo),
	))
	defer span.End()

	log.Infow("sync started", "from", run.DateFrom, "to", run.DateTo)

	res, err := o.execute(ctx, run, from, to, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sync.new", res.New),
		attribute.Int("sync.updated", res.Updated),
		attribute.Int("sync.hidden", res.Hidden),
	)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *models.SyncRun, from, to time.Time, log *logger.Logger) (*Result, error) {
	fctx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	sales, err := o.source.FetchSales(fctx, from, to)
	cancel()
	if err != nil {
		return nil, o.fail(ctx, run, runlog.Counts{}, ErrSourceUnavailable, err, log)
	}

	visible, hidden, err := overlay.Filter(ctx, o.overlay, sales)
	if err != nil {
		return nil, o.fail(ctx, run, runlog.Counts{}, ErrOverlayUnavailable, err, log)
	}
	if hidden > 0 {
		log.Infow("skipping hidden sales", "hidden", hidden)
	}

	counts, err := o.engine.ReconcileAll(ctx, visible, o.opts.BatchSize)
	rc := runlog.Counts{Processed: counts.Processed, New: counts.New, Updated: counts.Updated, Hidden: hidden}
	if err != nil {
		return nil, o.fail(ctx, run, rc, ErrBatchFailed, err, log)
	}

	if err := o.runs.Complete(ctx, run, rc); err != nil {
		return nil, &RunError{RunID: run.RunID, Kind: ErrRunLogWrite, Err: err, Counts: rc}
	}

	res := &Result{
		RunID:     run.RunID,
		Type:      run.SyncType,
		From:      run.DateFrom,
		To:        run.DateTo,
		Processed: rc.Processed,
		New:       rc.New,
		Updated:   rc.Updated,
		Hidden:    rc.Hidden,
		Duration:  run.Duration(),
	}
	log.Infow("sync completed", "processed", res.Processed, "new", res.New, "updated", res.Updated, "hidden", res.Hidden)
	return res, nil
}

// fail records the failure and returns the error for the caller. A run log
// write failure takes precedence as the reported kind.
func (o *Orchestrator) fail(ctx context.Context, run *models.SyncRun, c runlog.Counts, kind, cause error, log *logger.Logger) error {
	log.Errorw("sync failed", "kind", kind, "error", cause, "processed", c.Processed)

	if err := o.runs.Fail(context.WithoutCancel(ctx), run, c, fmt.Errorf("%w: %v", kind, cause)); err != nil {
		log.Errorw("could not record sync failure", "error", err)
		return &RunError{RunID: run.RunID, Kind: ErrRunLogWrite, Err: errors.Join(kind, cause, err), Counts: c}
	}
	return &RunError{RunID: run.RunID, Kind: kind, Err: cause, Counts: c}
}

// window resolves the effective [from, to] for req at now.
func (o *Orchestrator) window(ctx context.Context, req Request, now time.Time) (time.Time, time.Time, error) {
	loc := o.opts.Location
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	defFrom := today
	if o.opts.DefaultWindow != WindowToday {
		defFrom = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	}

	from, to := defFrom, today
	if req.From != nil {
		from = calendarDay(*req.From, loc)
	}
	if req.To != nil {
		to = calendarDay(*req.To, loc)
	}

	if req.Type == models.SyncIncremental {
		last, err := o.runs.LatestCompleted(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, &RunError{Kind: ErrRunLogWrite, Err: err}
		}
		if last != nil {
			if start, err := models.ParseDay(last.DateTo, loc); err == nil {
				from = start
			}
		}
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s after %s", ErrInvalidWindow, models.FormatDay(from), models.FormatDay(to))
	}
	return from, to, nil
}

// calendarDay keeps the date of t as written and places it at midnight in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Status reports today's auto sync state and the latest runs.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	today := models.FormatDay(o.now().In(o.opts.Location))

	done, err := o.runs.CompletedOn(ctx, models.SyncAuto, today)
	if err != nil {
		return nil, fmt.Errorf("check today's sync: %w", err)
	}
	last, err := o.runs.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last run: %w", err)
	}
	completed, err := o.runs.LatestCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last completed run: %w", err)
	}

	return &Status{
		Today:              today,
		AutoCompletedToday: done,
		LastRun:            last,
		LastCompleted:      completed,
	}, nil
}

package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/database/dbtest"
	"github.com/mkoziy/contratos/crmsync/internal/lock"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/overlay"
	"github.com/mkoziy/contratos/crmsync/internal/reconcile"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
	"github.com/mkoziy/contratos/crmsync/internal/runlog"
)

var santiago = time.FixedZone("CLT", -3*60*60)

// 12:00 in Santiago on 2026-10-18.
var fixedNow = time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	sales   []*models.Sale
	err     error
	calls   int
	from    time.Time
	to      time.Time
	wait    chan struct{}
	entered chan struct{}
}

func (f *fakeSource) FetchSales(ctx context.Context, from, to time.Time) ([]*models.Sale, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.Sale, len(f.sales))
	for i, s := range f.sales {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (lock.Release, error) { return nil, lock.ErrHeld }

type failingStore struct {
	reconcile.Store
	failOn int
	calls  int
}

func (f *failingStore) BulkUpsert(ctx context.Context, sales []*models.Sale) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("connection reset")
	}
	return f.Store.BulkUpsert(ctx, sales)
}

type harness struct {
	db      *bun.DB
	source  *fakeSource
	overlay *overlay.Memory
	sales   *repositories.SaleRepository
	runs    *repositories.SyncRunRepository
	log     *runlog.Log
	orch    *Orchestrator
}

func newHarness(t *testing.T, store func(reconcile.Store) reconcile.Store) *harness {
	db := dbtest.New(t)
	h := &harness{
		db:      db,
		source:  &fakeSource{},
		overlay: overlay.NewMemory(),
		sales:   repositories.NewSaleRepository(db),
		runs:    repositories.NewSyncRunRepository(db),
	}

	var st reconcile.Store = h.sales
	if store != nil {
		st = store(st)
	}

	h.log = runlog.New(h.runs, santiago)
	h.log.SetClock(func() time.Time { return fixedNow })

	h.orch = New(h.source, h.overlay, reconcile.NewEngine(st, logger.Nop()), h.log, nil, Options{
		BatchSize:           2,
		FetchTimeout:        time.Second,
		AutoSuppressSameDay: true,
		Location:            santiago,
	}, logger.Nop())
	h.orch.SetClock(func() time.Time { return fixedNow })
	return h
}

func sale(id string, value int64) *models.Sale {
	return &models.Sale{ID: id, CustomerName: "Cliente " + id, TotalValue: value, SaleDate: "2026-10-05"}
}

func (h *harness) runCount(t *testing.T) int {
	runs, err := h.runs.List(context.Background(), 100)
	require.NoError(t, err)
	return len(runs)
}

func TestRunSyncDefaultWindowAndCounts(t *testing.T) {
	h := newHarness(t, nil)
	h.source.sales = []*models.Sale{sale("A", 1), sale("B", 2), sale("C", 3)}

	res, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncManual})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 3, res.New)
	assert.Equal(t, "2026-10-01", res.From)
	assert.Equal(t, "2026-10-18", res.To)
	assert.Equal(t, "2026-10-01", models.FormatDay(h.source.from))

	run, err := h.log.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, res.RunID, run.RunID)
	assert.Equal(t, 3, run.NewCount)
}

func TestRunSyncThreeRecordScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	h.source.sales = []*models.Sale{sale("A", 1), sale("B", 2), sale("C", 3)}
	res, err := h.orch.RunSync(ctx, Request{Type: models.SyncManual, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.New)

	h.source.sales = []*models.Sale{sale("A", 10), sale("B", 2), sale("D", 4)}
	res, err = h.orch.RunSync(ctx, Request{Type: models.SyncManual, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 2, res.Updated)

	n, err := h.sales.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	c, err := h.sales.GetByID(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.TotalValue)
}

func TestRunSyncSuppressesSecondAutoRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.source.sales = []*models.Sale{sale("A", 1)}

	first, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
	require.NoError(t, err)
	require.False(t, first.Skipped)

	second, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, ReasonAlreadyCompleted, second.Reason)
	assert.Zero(t, second.Processed)
	assert.Zero(t, second.New)
	assert.Zero(t, second.Updated)

	assert.Equal(t, 1, h.source.calls)
	assert.Equal(t, 1, h.runCount(t))

	forced, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto, Force: true})
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
	assert.Equal(t, 1, forced.Updated)
	assert.Equal(t, 2, h.runCount(t))
}

func TestRunSyncWithoutSuppression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.orch.opts.AutoSuppressSameDay = false

	_, err := h.orch.RunSync(ctx, Request{Type: models.SyncManual})
	require.NoError(t, err)
	res, err := h.orch.RunSync(ctx, Request{Type: models.SyncManual})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, h.runCount(t))
}

func TestRunSyncAutoWithoutSuppression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.orch.opts.AutoSuppressSameDay = false
	h.source.sales = []*models.Sale{sale("A", 1)}

	for i := 0; i < 2; i++ {
		res, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
		require.NoError(t, err)
		assert.False(t, res.Skipped, "run %d", i)
	}
	assert.Equal(t, 2, h.source.calls)
	assert.Equal(t, 2, h.runCount(t))
}

func TestRunSyncIncrementalStartsAtLastCompletedEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, santiago)
	to := time.Date(2026, 10, 10, 0, 0, 0, 0, santiago)
	_, err := h.orch.RunSync(ctx, Request{Type: models.SyncFull, From: &from, To: &to})
	require.NoError(t, err)

	res, err := h.orch.RunSync(ctx, Request{Type: models.SyncIncremental})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-10", res.From)
	assert.Equal(t, "2026-10-18", res.To)
}

func TestRunSyncIncrementalFallsBackToCallerStart(t *testing.T) {
	h := newHarness(t, nil)

	from := time.Date(2026, 10, 15, 0, 0, 0, 0, santiago)
	res, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncIncremental, From: &from})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", res.From)
}

func TestRunSyncKeepsRequestedCalendarDays(t *testing.T) {
	h := newHarness(t, nil)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	res, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncManual, From: &from, To: &to, Force: true})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-01", res.From)
	assert.Equal(t, "2026-10-05", res.To)
}

func TestRunSyncRejectsInvertedWindow(t *testing.T) {
	h := newHarness(t, nil)

	from := time.Date(2026, 10, 15, 0, 0, 0, 0, santiago)
	to := time.Date(2026, 10, 1, 0, 0, 0, 0, santiago)
	_, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncManual, From: &from, To: &to})
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Equal(t, 0, h.runCount(t))
}

func TestRunSyncSourceFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.source.err = errors.New("dial tcp: connection refused")

	res, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.NotEmpty(t, re.RunID)

	run, err := h.log.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "connection refused")

	// A failed auto run does not suppress the retry.
	h.source.err = nil
	res, err = h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestRunSyncPartialBatchFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(s reconcile.Store) reconcile.Store {
		return &failingStore{Store: s, failOn: 2}
	})
	h.source.sales = []*models.Sale{sale("A", 1), sale("B", 2), sale("C", 3), sale("D", 4), sale("E", 5)}

	_, err := h.orch.RunSync(ctx, Request{Type: models.SyncManual})
	assert.ErrorIs(t, err, ErrBatchFailed)

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Counts.New)

	run, err := h.log.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, 2, run.NewCount)
	assert.Equal(t, 2, run.TotalProcessed)

	n, err := h.sales.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "committed batches are kept")
}

func TestRunSyncSkipsHiddenSales(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.source.sales = []*models.Sale{sale("A", 1), sale("B", 2), sale("C", 3)}

	_, err := h.overlay.Hide(ctx, "B", nil, "")
	require.NoError(t, err)

	res, err := h.orch.RunSync(ctx, Request{Type: models.SyncManual})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 1, res.Hidden)

	_, err = h.sales.GetByID(ctx, "B")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	run, err := h.log.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.HiddenCount)
}

func TestRunSyncDedupesAcrossBatches(t *testing.T) {
	h := newHarness(t, nil)
	h.source.sales = []*models.Sale{sale("A", 1), sale("B", 2), sale("A", 3)}

	res, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncManual})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.New)

	a, err := h.sales.GetByID(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.TotalValue)
}

func TestRunSyncLockedElsewhere(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.locker = heldLocker{}

	res, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncAuto})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonLocked, res.Reason)
	assert.Equal(t, 0, h.source.calls)
	assert.Equal(t, 0, h.runCount(t))
}

func TestRunSyncLiveAutoRunReportedAsInProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	// Simulates another process that started today's auto run.
	_, err := h.log.Start(ctx, runlog.StartParams{Type: models.SyncAuto, From: fixedNow, To: fixedNow, Suppress: true})
	require.NoError(t, err)

	res, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonInProgress, res.Reason)
	assert.Equal(t, 0, h.source.calls)
}

type brokenRunLog struct {
	RunLog
}

func (brokenRunLog) Complete(context.Context, *models.SyncRun, runlog.Counts) error {
	return errors.New("database is locked")
}

func TestRunSyncRunLogWriteFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.runs = brokenRunLog{RunLog: h.log}

	_, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncManual})
	assert.ErrorIs(t, err, ErrRunLogWrite)
}

func TestRunSyncCollapsesConcurrentRequests(t *testing.T) {
	h := newHarness(t, nil)
	h.source.sales = []*models.Sale{sale("A", 1)}
	h.source.wait = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncAuto})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(h.source.wait)
	wg.Wait()

	assert.Equal(t, 1, h.source.calls)
	assert.Equal(t, 1, h.runCount(t))
}

func TestRunSyncCallerCancelDoesNotFailSharedRun(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.opts.FetchTimeout = 5 * time.Second
	h.source.sales = []*models.Sale{sale("A", 1)}
	h.source.wait = make(chan struct{})
	h.source.entered = make(chan struct{}, 1)

	actx, cancel := context.WithCancel(context.Background())
	aerr := make(chan error, 1)
	go func() {
		_, err := h.orch.RunSync(actx, Request{Type: models.SyncManual})
		aerr <- err
	}()
	<-h.source.entered

	type outcome struct {
		res *Result
		err error
	}
	bdone := make(chan outcome, 1)
	go func() {
		res, err := h.orch.RunSync(context.Background(), Request{Type: models.SyncManual})
		bdone <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-aerr, context.Canceled)

	close(h.source.wait)
	b := <-bdone
	require.NoError(t, b.err)
	assert.False(t, b.res.Skipped)
	assert.Equal(t, 1, b.res.New)
	assert.Equal(t, 1, h.source.calls)

	run, err := h.log.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
}

func TestCloseCancelsAndRecordsInflightRun(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.opts.FetchTimeout = time.Minute
	h.source.wait = make(chan struct{})
	h.source.entered = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
		done <- err
	}()
	<-h.source.entered

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	h.orch.Close()

	run, err := h.log.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status, "no iniciado row left behind")

	_, err = h.orch.RunSync(context.Background(), Request{Type: models.SyncManual})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunSyncRejectsUnknownType(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.RunSync(context.Background(), Request{Type: "weekly"})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	st, err := h.orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18", st.Today)
	assert.False(t, st.AutoCompletedToday)
	assert.Nil(t, st.LastRun)

	_, err = h.orch.RunSync(ctx, Request{Type: models.SyncAuto})
	require.NoError(t, err)

	h.source.err = errors.New("timeout")
	_, err = h.orch.RunSync(ctx, Request{Type: models.SyncManual, Force: true})
	require.Error(t, err)

	st, err = h.orch.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.AutoCompletedToday)
	assert.Equal(t, models.RunFailed, st.LastRun.Status)
	assert.Equal(t, models.SyncAuto, st.LastCompleted.SyncType)
}

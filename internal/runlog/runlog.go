// Package runlog records the lifecycle of sync runs. Entries are inserted as
// iniciado and move exactly once to completado or error.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkoziy/contratos/crmsync/internal/database"
	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/repositories"
)

// ErrAlreadyRunning is returned by Start when the database refuses a second
// live suppressible auto run for the same day.
var ErrAlreadyRunning = errors.New("an automatic sync already ran or is running today")

// Counts are the totals written to a finished entry.
type Counts struct {
	Processed int
	New       int
	Updated   int
	Hidden    int
}

// StartParams describe a run about to begin. Suppress is set when same-day
// suppression is on; only unforced auto runs are then held to one per day.
type StartParams struct {
	Type     models.SyncType
	From     time.Time
	To       time.Time
	Forced   bool
	Suppress bool
}

// Log is the sync run log.
type Log struct {
	repo *repositories.SyncRunRepository
	loc  *time.Location
	now  func() time.Time
}

// New creates a run log. Calendar days are computed in loc.
func New(repo *repositories.SyncRunRepository, loc *time.Location) *Log {
	if loc == nil {
		loc = time.UTC
	}
	return &Log{repo: repo, loc: loc, now: time.Now}
}

// SetClock replaces the time source.
func (l *Log) SetClock(now func() time.Time) {
	l.now = now
}

// Today returns the current calendar day in the log's location.
func (l *Log) Today() string {
	return models.FormatDay(l.now().In(l.loc))
}

// Start inserts a new iniciado entry.
func (l *Log) Start(ctx context.Context, p StartParams) (*models.SyncRun, error) {
	now := l.now()
	run := &models.SyncRun{
		RunID:        uuid.NewString(),
		SyncType:     p.Type,
		DateFrom:     models.FormatDay(p.From.In(l.loc)),
		DateTo:       models.FormatDay(p.To.In(l.loc)),
		Status:       models.RunStarted,
		Forced:       p.Forced,
		Suppressible: p.Suppress && p.Type == models.SyncAuto && !p.Forced,
		RunDay:       models.FormatDay(now.In(l.loc)),
		StartedAt:    now.UTC(),
	}

	if err := l.repo.Insert(ctx, run); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("insert sync run: %w", err)
	}
	return run, nil
}

// Complete marks run completado with its final counts.
func (l *Log) Complete(ctx context.Context, run *models.SyncRun, c Counts) error {
	return l.finish(ctx, run, models.RunCompleted, c, nil)
}

// Fail marks run as error with the counts committed before cause.
func (l *Log) Fail(ctx context.Context, run *models.SyncRun, c Counts, cause error) error {
	return l.finish(ctx, run, models.RunFailed, c, cause)
}

func (l *Log) finish(ctx context.Context, run *models.SyncRun, status models.RunStatus, c Counts, cause error) error {
	if run.Status.Terminal() {
		return repositories.ErrRunFinalized
	}

	done := l.now().UTC()
	secs := done.Sub(run.StartedAt).Seconds()
	if secs < 0 {
		secs = 0
	}

	updated := *run
	updated.Status = status
	updated.TotalProcessed = c.Processed
	updated.NewCount = c.New
	updated.UpdatedCount = c.Updated
	updated.HiddenCount = c.Hidden
	updated.CompletedAt = &done
	updated.DurationSeconds = &secs
	if cause != nil {
		msg := cause.Error()
		updated.ErrorMessage = &msg
	}

	if err := l.repo.Finish(ctx, &updated); err != nil {
		return fmt.Errorf("finish sync run %s: %w", run.RunID, err)
	}
	*run = updated
	return nil
}

// CompletedOn reports whether a completado entry of syncType exists for day.
func (l *Log) CompletedOn(ctx context.Context, syncType models.SyncType, day string) (bool, error) {
	run, err := l.repo.FindLatestCompleted(ctx, syncType, day)
	if err != nil {
		return false, err
	}
	return run != nil && run.RunDay == day, nil
}

// LatestCompleted returns the newest completado entry of any type, or nil.
func (l *Log) LatestCompleted(ctx context.Context) (*models.SyncRun, error) {
	return l.repo.FindLatestCompleted(ctx, "", "")
}

// Latest returns the newest entry of any status, or nil.
func (l *Log) Latest(ctx context.Context) (*models.SyncRun, error) {
	return l.repo.Latest(ctx)
}

// History returns up to limit entries, newest first.
func (l *Log) History(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return l.repo.List(ctx, limit)
}

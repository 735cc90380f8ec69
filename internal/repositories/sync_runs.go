package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// SyncRunRepository persists the append-only sync run log.
type SyncRunRepository struct {
	db bun.IDB
}

// NewSyncRunRepository creates a repository over db.
func NewSyncRunRepository(db bun.IDB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Insert writes a new run entry and fills its autoincrement id.
func (r *SyncRunRepository) Insert(ctx context.Context, run *models.SyncRun) error {
	_, err := r.db.NewInsert().
		Model(run).
		Returning("id").
		Exec(ctx)
	return err
}

// Finish moves an iniciado run to its terminal state. The update is guarded
// on the current status so a terminal entry is never rewritten.
func (r *SyncRunRepository) Finish(ctx context.Context, run *models.SyncRun) error {
	res, err := r.db.NewUpdate().
		Model(run).
		Column("status", "total_processed", "new_count", "updated_count",
			"hidden_count", "error_message", "completed_at", "duration_seconds").
		Where("run_id = ?", run.RunID).
		Where("status = ?", models.RunStarted).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrRunFinalized
	}
	return nil
}

// FindLatestCompleted returns the newest completado run. An empty syncType
// matches every type; a non-empty sinceDay restricts to runs on or after it.
// Returns nil without error when there is none.
func (r *SyncRunRepository) FindLatestCompleted(ctx context.Context, syncType models.SyncType, sinceDay string) (*models.SyncRun, error) {
	run := new(models.SyncRun)
	q := r.db.NewSelect().
		Model(run).
		Where("status = ?", models.RunCompleted)
	if syncType != "" {
		q = q.Where("sync_type = ?", syncType)
	}
	if sinceDay != "" {
		q = q.Where("run_day >= ?", sinceDay)
	}

	err := q.OrderExpr("started_at DESC, id DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Latest returns the newest run of any status, or nil when the log is empty.
func (r *SyncRunRepository) Latest(ctx context.Context) (*models.SyncRun, error) {
	run := new(models.SyncRun)
	err := r.db.NewSelect().
		Model(run).
		OrderExpr("started_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.SyncRun
	err := r.db.NewSelect().
		Model(&runs).
		OrderExpr("started_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	return runs, err
}

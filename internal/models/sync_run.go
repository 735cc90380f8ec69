package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SyncRun is one append-only entry of the sync run log.
type SyncRun struct {
	bun.BaseModel `bun:"table:sync_runs,alias:sr"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	RunID           string     `bun:"run_id,unique,notnull" json:"run_id"`
	SyncType        SyncType   `bun:"sync_type,notnull" json:"sync_type"`
	DateFrom        string     `bun:"date_from,notnull" json:"date_from"`
	DateTo          string     `bun:"date_to,notnull" json:"date_to"`
	Status          RunStatus  `bun:"status,notnull" json:"status"`
	Forced          bool       `bun:"forced,notnull,default:false" json:"forced"`
	Suppressible    bool       `bun:"suppressible,notnull,default:false" json:"-"`
	RunDay          string     `bun:"run_day,notnull" json:"run_day"`
	TotalProcessed  int        `bun:"total_processed,notnull,default:0" json:"total_processed"`
	NewCount        int        `bun:"new_count,notnull,default:0" json:"new_count"`
	UpdatedCount    int        `bun:"updated_count,notnull,default:0" json:"updated_count"`
	HiddenCount     int        `bun:"hidden_count,notnull,default:0" json:"hidden_count"`
	ErrorMessage    *string    `bun:"error_message" json:"error_message,omitempty"`
	StartedAt       time.Time  `bun:"started_at,notnull" json:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	DurationSeconds *float64   `bun:"duration_seconds" json:"duration_seconds,omitempty"`
}

// Succeeded reports whether the run reached completado.
func (r *SyncRun) Succeeded() bool {
	return r.Status == RunCompleted
}

// Duration returns the recorded duration, or zero while the run is open.
func (r *SyncRun) Duration() time.Duration {
	if r.DurationSeconds == nil {
		return 0
	}
	return time.Duration(*r.DurationSeconds * float64(time.Second))
}

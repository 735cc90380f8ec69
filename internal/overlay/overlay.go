// Package overlay hides sales from the working view without touching the
// mirror. The sync engine consults it before writing and every read path
// consults it before returning sales.
//
// The backend is chosen at wiring time. Memory is process-local and loses
// hidden entries on restart, so hidden sales reappear after a restart; use
// the database or redis backend when that matters.
package overlay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// Backend names accepted in configuration.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// Overlay is a keyed set of hidden sale ids with an undo snapshot per entry.
type Overlay interface {
	// Hide records saleID as hidden. Hiding an already hidden sale replaces
	// snapshot and reason and returns the existing entry id.
	Hide(ctx context.Context, saleID string, snapshot models.RawJSON, reason string) (string, error)
	// Restore removes the entry and reports whether one existed.
	Restore(ctx context.Context, saleID string) (bool, error)
	HiddenIDs(ctx context.Context) (map[string]struct{}, error)
	IsHidden(ctx context.Context, saleID string) (bool, error)
	// Get returns the entry for saleID, or nil when the sale is visible.
	Get(ctx context.Context, saleID string) (*models.SoftDelete, error)
}

// Filter drops hidden sales, preserving order, and returns how many were dropped.
func Filter(ctx context.Context, o Overlay, sales []*models.Sale) ([]*models.Sale, int, error) {
	hidden, err := o.HiddenIDs(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(hidden) == 0 {
		return sales, 0, nil
	}

	kept := make([]*models.Sale, 0, len(sales))
	for _, s := range sales {
		if _, ok := hidden[s.ID]; ok {
			continue
		}
		kept = append(kept, s)
	}
	return kept, len(sales) - len(kept), nil
}

func newEntry(saleID string, snapshot models.RawJSON, reason string) *models.SoftDelete {
	if reason == "" {
		reason = models.DefaultHideReason
	}
	return &models.SoftDelete{
		ID:        uuid.NewString(),
		SaleID:    saleID,
		Snapshot:  snapshot,
		Reason:    reason,
		DeletedAt: time.Now().UTC(),
	}
}

package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// SoftDeleteRepository stores the hide overlay. Rows here never touch crm_sales.
type SoftDeleteRepository struct {
	db bun.IDB
}

// NewSoftDeleteRepository creates a repository over db.
func NewSoftDeleteRepository(db bun.IDB) *SoftDeleteRepository {
	return &SoftDeleteRepository{db: db}
}

// Upsert records entry, replacing snapshot and reason when the sale is
// already hidden. It returns the id of the stored entry, which is stable
// across repeated hides.
func (r *SoftDeleteRepository) Upsert(ctx context.Context, entry *models.SoftDelete) (string, error) {
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (sale_id) DO UPDATE").
		Set("snapshot = EXCLUDED.snapshot").
		Set("reason = EXCLUDED.reason").
		Set("deleted_at = EXCLUDED.deleted_at").
		Exec(ctx)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.NewSelect().
		Model((*models.SoftDelete)(nil)).
		Column("id").
		Where("sale_id = ?", entry.SaleID).
		Scan(ctx, &id)
	return id, err
}

// Delete removes the entry for saleID and reports whether one existed.
func (r *SoftDeleteRepository) Delete(ctx context.Context, saleID string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.SoftDelete)(nil)).
		Where("sale_id = ?", saleID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get returns the entry for saleID.
func (r *SoftDeleteRepository) Get(ctx context.Context, saleID string) (*models.SoftDelete, error) {
	entry := new(models.SoftDelete)
	err := r.db.NewSelect().
		Model(entry).
		Where("sale_id = ?", saleID).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return entry, nil
}

// SaleIDs returns every hidden sale id.
func (r *SoftDeleteRepository) SaleIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*models.SoftDelete)(nil)).
		Column("sale_id").
		Order("sale_id").
		Scan(ctx, &ids)
	return ids, err
}

// Exists reports whether saleID is hidden.
func (r *SoftDeleteRepository) Exists(ctx context.Context, saleID string) (bool, error) {
	return r.db.NewSelect().
		Model((*models.SoftDelete)(nil)).
		Where("sale_id = ?", saleID).
		Exists(ctx)
}

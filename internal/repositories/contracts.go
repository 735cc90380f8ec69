package repositories

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// ContractRepository persists drafted contracts.
type ContractRepository struct {
	db bun.IDB
}

// NewContractRepository creates a repository over db.
func NewContractRepository(db bun.IDB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create inserts c and fills its id.
func (r *ContractRepository) Create(ctx context.Context, c *models.Contract) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := r.db.NewInsert().
		Model(c).
		Returning("id").
		Exec(ctx)
	return err
}

// Get returns the contract with the given id.
func (r *ContractRepository) Get(ctx context.Context, id int64) (*models.Contract, error) {
	c := new(models.Contract)
	err := r.db.NewSelect().
		Model(c).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// UpdateStatus stores c's status and timestamps if the stored status is
// still from. ErrStaleStatus means another writer moved it first.
func (r *ContractRepository) UpdateStatus(ctx context.Context, c *models.Contract, from models.ContractStatus) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model(c).
		Column("status", "validated_at", "sent_at", "updated_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStaleStatus
	}
	return nil
}

// ListBySale returns the contracts drafted from saleID, oldest first.
func (r *ContractRepository) ListBySale(ctx context.Context, saleID string) ([]models.Contract, error) {
	var out []models.Contract
	err := r.db.NewSelect().
		Model(&out).
		Where("sale_id = ?", saleID).
		Order("id").
		Scan(ctx)
	return out, err
}

package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// saleAttributeColumns are overwritten on every re-import (last write wins).
var saleAttributeColumns = []string{
	"customer_name",
	"customer_rut",
	"customer_phone",
	"customer_email",
	"delivery_address",
	"total_value",
	"house_model",
	"material_detail",
	"sale_date",
	"delivery_date",
	"salesperson_id",
	"salesperson_name",
	"supervisor_name",
	"crm_status",
	"crm_notes",
	"contract_number",
	"raw_payload",
	"synced_at",
	"updated_at",
}

// SaleFilter narrows listing queries over the mirror.
type SaleFilter struct {
	From          string
	To            string
	SalespersonID string
	Search        string
	ExcludeIDs    []string
	Limit         int
	Offset        int
}

// SaleRepository reads and writes the crm_sales mirror.
type SaleRepository struct {
	db bun.IDB
}

// NewSaleRepository creates a repository over db.
func NewSaleRepository(db bun.IDB) *SaleRepository {
	return &SaleRepository{db: db}
}

// BulkLookup returns the stamps of the ids already mirrored, in one query.
func (r *SaleRepository) BulkLookup(ctx context.Context, ids []string) ([]models.SaleStamp, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var stamps []models.SaleStamp
	err := r.db.NewSelect().
		Model((*models.Sale)(nil)).
		Column("id", "updated_at").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx, &stamps)

	return stamps, err
}

// BulkUpsert performs a batch upsert keyed by the CRM id. Every attribute
// column is overwritten; created_at keeps the first import time.
func (r *SaleRepository) BulkUpsert(ctx context.Context, sales []*models.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, s := range sales {
		s.SyncedAt = now
		s.UpdatedAt = now
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
	}

	q := r.db.NewInsert().
		Model(&sales).
		On("CONFLICT (id) DO UPDATE")
	for _, col := range saleAttributeColumns {
		q = q.Set(col + " = EXCLUDED." + col)
	}

	_, err := q.Exec(ctx)
	return err
}

// GetByID returns the mirror row for id.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*models.Sale, error) {
	sale := new(models.Sale)
	err := r.db.NewSelect().
		Model(sale).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return sale, nil
}

// List returns a page of mirror rows ordered by sale date (newest first)
// together with the total count for the filter.
func (r *SaleRepository) List(ctx context.Context, f SaleFilter) ([]models.Sale, int, error) {
	var sales []models.Sale
	q := r.db.NewSelect().Model(&sales)

	if f.From != "" {
		q = q.Where("sale_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("sale_date <= ?", f.To)
	}
	if f.SalespersonID != "" {
		q = q.Where("salesperson_id = ?", f.SalespersonID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(customer_name) LIKE ?", like).
				WhereOr("LOWER(customer_rut) LIKE ?", like).
				WhereOr("LOWER(id) LIKE ?", like)
		})
	}
	if len(f.ExcludeIDs) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(f.ExcludeIDs))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	total, err := q.OrderExpr("sale_date DESC, id ASC").ScanAndCount(ctx)
	return sales, total, err
}

// Count returns the number of mirror rows.
func (r *SaleRepository) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*models.Sale)(nil)).Count(ctx)
}

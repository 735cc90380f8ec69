package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_crm_sales_sale_date ON crm_sales(sale_date)",
			"CREATE INDEX IF NOT EXISTS idx_crm_sales_salesperson ON crm_sales(salesperson_id)",
			"CREATE INDEX IF NOT EXISTS idx_sync_runs_type_status_day ON sync_runs(sync_type, status, run_day)",
			"CREATE INDEX IF NOT EXISTS idx_contracts_sale ON contracts(sale_id)",
			"CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status)",
		}

		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"DROP INDEX IF EXISTS idx_crm_sales_sale_date",
			"DROP INDEX IF EXISTS idx_crm_sales_salesperson",
			"DROP INDEX IF EXISTS idx_sync_runs_type_status_day",
			"DROP INDEX IF EXISTS idx_contracts_sale",
			"DROP INDEX IF EXISTS idx_contracts_status",
		}

		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}

		return nil
	})
}

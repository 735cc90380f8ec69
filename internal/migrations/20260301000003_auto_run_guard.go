package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

// At most one live suppressible run per calendar day. Only unforced auto
// runs started with same-day suppression on are suppressible. Failed runs
// leave the index so the next trigger can retry.
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, `
			CREATE UNIQUE INDEX IF NOT EXISTS uq_sync_runs_auto_day
			ON sync_runs(sync_type, run_day)
			WHERE suppressible AND status IN ('iniciado', 'completado')`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "DROP INDEX IF EXISTS uq_sync_runs_auto_day")
		return err
	})
}

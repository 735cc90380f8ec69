package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.Sale)(nil),
			(*models.SyncRun)(nil),
			(*models.SoftDelete)(nil),
			(*models.Contract)(nil),
		}

		for _, model := range modelsList {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.Contract)(nil),
			(*models.SoftDelete)(nil),
			(*models.SyncRun)(nil),
			(*models.Sale)(nil),
		}

		for _, model := range modelsList {
			if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	})
}

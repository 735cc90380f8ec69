package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations collects the schema steps. Each step lives in its own
// <timestamp>_<name>.go file because bun derives the migration name from
// the registering file.
var Migrations = migrate.NewMigrations()

// RunMigrations runs all pending migrations and returns the applied group.
// The group is empty when the schema is already current.
func RunMigrations(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}

	return migrator.Migrate(ctx)
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}

	return migrator.Rollback(ctx)
}

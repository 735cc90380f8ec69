// Package dbtest opens migrated in-memory databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/uptrace/bun"

	"github.com/mkoziy/contratos/crmsync/internal/database"
	"github.com/mkoziy/contratos/crmsync/internal/migrations"
)

var seq atomic.Int64

// New returns a fresh, fully migrated SQLite database private to t.
func New(t testing.TB) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := database.NewDB(dsn, false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := migrations.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

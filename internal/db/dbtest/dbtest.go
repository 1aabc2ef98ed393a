// Package dbtest opens migrated databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/db"
)

var tables = []string{
	"order_messages",
	"orders",
	"affiliate_applications",
	"user_roles",
	"site_settings",
	"products",
	"categories",
}

// InitTestDB returns a fresh schema. It uses STOREFRONT_TEST_DATABASE_URL when
// set (and truncates every table) and a private in-memory sqlite otherwise.
func InitTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("STOREFRONT_TEST_DATABASE_URL")
	external := dsn != ""
	if !external {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	}

	gdb, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	if external {
		gdb.Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE")
	}
	return gdb
}

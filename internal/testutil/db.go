package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/swexcamp/adventd/internal/registry"
	"github.com/swexcamp/adventd/internal/storage"
)

// OpenTestDB opens a migrated throwaway sqlite database.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(path, registry.SchemaSQL)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

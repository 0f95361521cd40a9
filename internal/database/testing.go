package database

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestDB creates a migrated sqlite database under t.TempDir and closes it on cleanup.
func OpenTestDB(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

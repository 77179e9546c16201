package db

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// OpenTest opens a migrated SQLite database in a temporary directory that is
// removed when the test ends.
func OpenTest(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := OpenSQLite(filepath.Join(t.TempDir(), "lectern.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { Close(gdb) })
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

package db

import (
	"path/filepath"
	"testing"
)

// SetupTestDB creates a throwaway on-disk SQLite database for testing. A
// real file (not :memory:) so the WAL pragmas and the connection pool behave
// as they do in production.
func SetupTestDB(t *testing.T) *Database {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	database, err := NewDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

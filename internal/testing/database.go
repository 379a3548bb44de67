package testing

import (
	"database/sql"
	"testing"

	"github.com/buzzsnip/buzzsnip/db"
)

// CreateTestDB creates a migrated in-memory SQLite test database.
// Automatically registers cleanup via t.Cleanup().
//
// Every connection to ":memory:" is its own database, so the pool is pinned
// to a single connection. Code under test must not touch the *sql.DB while
// holding a transaction on it.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", db.DSN(":memory:"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	t.Cleanup(func() {
		conn.Close()
	})

	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return conn
}

// CreateFileTestDB creates a migrated SQLite database in a temp directory.
// Use it when a test needs real multi-connection behavior such as two
// writers contending for the lock.
func CreateFileTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	path := t.TempDir() + "/test.db"
	conn, err := db.OpenWithMigrations(path, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn, path
}

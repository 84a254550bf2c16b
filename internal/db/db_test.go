// Package db tests for database connection management.
package db

import (
	"path/filepath"
	"testing"
)

// TestOpen verifies the database opens with WAL mode and foreign keys.
func TestOpen(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	var journalMode string
	if err := database.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want 'wal'", journalMode)
	}

	var foreignKeys int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("failed to query foreign keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("foreign_keys = %d, want 1", foreignKeys)
	}
}

// TestOpenCreatesDataDir verifies the data directory is created.
func TestOpenCreatesDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")

	database, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	database.Close()
}

// TestOpenReopen verifies data survives a close/reopen cycle.
func TestOpenReopen(t *testing.T) {
	dataDir := t.TempDir()

	database, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := database.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if _, err := database.Exec("INSERT INTO probe (id) VALUES (42)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	database.Close()

	reopened, err := Open(dataDir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	var id int
	if err := reopened.QueryRow("SELECT id FROM probe").Scan(&id); err != nil {
		t.Fatalf("select after reopen failed: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

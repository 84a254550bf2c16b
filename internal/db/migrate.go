// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration is a schema change compiled into the binary. The shells install
// no loose files, so migrations ship in code rather than a directory.
type migration struct {
	version     int
	description string
	sql         string
}

// migrations holds the full schema history in version order.
var migrations = []migration{
	{
		version:     1,
		description: "action_queue",
		sql: `
	CREATE TABLE IF NOT EXISTS action_queue (
		id TEXT PRIMARY KEY CHECK(length(id) = 36),
		action_type TEXT NOT NULL CHECK(length(action_type) > 0),
		payload TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0 CHECK(attempts >= 0),
		status TEXT NOT NULL CHECK(status IN ('pending', 'syncing', 'failed', 'conflict')),
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL CHECK(created_at > 0),
		updated_at INTEGER NOT NULL CHECK(updated_at > 0)
	);
	CREATE INDEX IF NOT EXISTS idx_action_queue_created_at ON action_queue(created_at);
	CREATE INDEX IF NOT EXISTS idx_action_queue_status ON action_queue(status);`,
	},
	{
		version:     2,
		description: "sync_checkpoint",
		sql: `
	CREATE TABLE IF NOT EXISTS sync_checkpoint (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		expected_count INTEGER NOT NULL CHECK(expected_count >= 0),
		expected_ids TEXT NOT NULL,
		recorded_at INTEGER NOT NULL CHECK(recorded_at > 0)
	);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations in version order. Already-applied
// migrations are checksum-verified so a drifted binary fails loudly instead
// of silently running against an incompatible schema.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedByVersion := make(map[int]Migration)
	for _, mig := range applied {
		appliedByVersion[mig.Version] = mig
	}

	pending := make([]migration, len(migrations))
	copy(pending, migrations)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].version < pending[j].version
	})

	for _, mig := range pending {
		if prev, ok := appliedByVersion[mig.version]; ok {
			if prev.Checksum != checksum(mig.sql) {
				return fmt.Errorf("migration V%d checksum mismatch: schema drift", mig.version)
			}
			continue
		}

		if err := m.applyMigration(mig); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", mig.version, err)
		}
	}

	return nil
}

// applyMigration applies a single migration inside a transaction.
func (m *Migrator) applyMigration(mig migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.version, time.Now().Unix(), mig.description, checksum(mig.sql)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// checksum computes the SHA-256 hex digest of migration SQL.
func checksum(sql string) string {
	hash := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(hash[:])
}

// Package db provides CRUD repository operations for the sync core's models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/baltiqcast/driversync/internal/models"
)

// Repository provides CRUD operations for the action queue and checkpoint.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for the hot queue queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from the cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// QueuedAction operations
// =====================================================

// UpsertQueuedAction inserts or overwrites an action by id.
func (r *Repository) UpsertQueuedAction(action *models.QueuedAction) error {
	query := `INSERT INTO action_queue (id, action_type, payload, attempts, status, last_error, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
				action_type = excluded.action_type,
				payload = excluded.payload,
				attempts = excluded.attempts,
				status = excluded.status,
				last_error = excluded.last_error,
				updated_at = excluded.updated_at`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}

	if action.UpdatedAt == 0 {
		action.UpdatedAt = time.Now().UnixNano()
	}

	_, err = stmt.Exec(action.ID, action.ActionType, string(action.Payload),
		action.Attempts, action.Status, action.LastError,
		action.CreatedAt, action.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert queued action: %w", err)
	}

	return nil
}

// GetQueuedAction retrieves a single action by id.
// Returns sql.ErrNoRows if the action does not exist.
func (r *Repository) GetQueuedAction(id string) (*models.QueuedAction, error) {
	query := `SELECT id, action_type, payload, attempts, status, last_error, created_at, updated_at
			  FROM action_queue WHERE id = ?`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	return scanAction(stmt.QueryRow(id))
}

// ListQueuedActions returns all actions ordered by created_at ascending.
// The secondary order on id keeps the drain deterministic when two actions
// share a timestamp.
func (r *Repository) ListQueuedActions() ([]*models.QueuedAction, error) {
	query := `SELECT id, action_type, payload, attempts, status, last_error, created_at, updated_at
			  FROM action_queue ORDER BY created_at ASC, id ASC`

	return r.queryActions(query)
}

// ListActiveActions returns actions eligible for automatic sync, FIFO.
// Conflict entries are excluded; they wait for explicit user action.
func (r *Repository) ListActiveActions() ([]*models.QueuedAction, error) {
	query := `SELECT id, action_type, payload, attempts, status, last_error, created_at, updated_at
			  FROM action_queue
			  WHERE status IN ('pending', 'syncing', 'failed')
			  ORDER BY created_at ASC, id ASC`

	return r.queryActions(query)
}

// DeleteQueuedAction removes an action by id. Deleting an absent id is not
// an error.
func (r *Repository) DeleteQueuedAction(id string) error {
	stmt, err := r.PrepareStmt(`DELETE FROM action_queue WHERE id = ?`)
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(id); err != nil {
		return fmt.Errorf("failed to delete queued action: %w", err)
	}

	return nil
}

// CountActiveActions returns the number of actions counting toward the
// pending total shown to the driver.
func (r *Repository) CountActiveActions() (int, error) {
	stmt, err := r.PrepareStmt(`SELECT COUNT(*) FROM action_queue WHERE status IN ('pending', 'syncing', 'failed')`)
	if err != nil {
		return 0, err
	}

	var count int
	if err := stmt.QueryRow().Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active actions: %w", err)
	}

	return count, nil
}

func (r *Repository) queryActions(query string) ([]*models.QueuedAction, error) {
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.QueuedAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*models.QueuedAction, error) {
	var action models.QueuedAction
	var payload string

	err := row.Scan(&action.ID, &action.ActionType, &payload, &action.Attempts,
		&action.Status, &action.LastError, &action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}

	action.Payload = []byte(payload)
	return &action, nil
}

// =====================================================
// SyncCheckpoint operations
// =====================================================

// GetCheckpoint returns the loss-detection checkpoint.
// Returns sql.ErrNoRows if no checkpoint has been recorded yet.
func (r *Repository) GetCheckpoint() (*models.SyncCheckpoint, error) {
	stmt, err := r.PrepareStmt(`SELECT id, expected_count, expected_ids, recorded_at FROM sync_checkpoint WHERE id = 1`)
	if err != nil {
		return nil, err
	}

	var cp models.SyncCheckpoint
	err = stmt.QueryRow().Scan(&cp.ID, &cp.ExpectedCount, &cp.ExpectedIDs, &cp.RecordedAt)
	if err != nil {
		return nil, err
	}

	return &cp, nil
}

// SaveCheckpoint overwrites the loss-detection checkpoint. There is only
// ever one row.
func (r *Repository) SaveCheckpoint(cp *models.SyncCheckpoint) error {
	query := `INSERT INTO sync_checkpoint (id, expected_count, expected_ids, recorded_at)
			  VALUES (1, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
				expected_count = excluded.expected_count,
				expected_ids = excluded.expected_ids,
				recorded_at = excluded.recorded_at`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}

	if cp.RecordedAt == 0 {
		cp.RecordedAt = time.Now().Unix()
	}

	if _, err := stmt.Exec(cp.ExpectedCount, cp.ExpectedIDs, cp.RecordedAt); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

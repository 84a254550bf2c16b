// Package store provides the durable action store backing the offline queue.
//
// The primary implementation persists to SQLite so queued driver actions
// survive app restarts. When the database cannot be opened at all (no
// writable data dir, corrupted volume), the store degrades to an in-memory,
// session-only queue rather than crashing the shell; the Degraded flag lets
// the UI warn the driver that durability is gone.
package store

import (
	"github.com/baltiqcast/driversync/internal/db"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/models"
)

// EventKind identifies what kind of mutation triggered a notification.
type EventKind string

const (
	EventPut    EventKind = "put"
	EventRemove EventKind = "remove"
)

// Event describes a single store mutation, delivered to subscribers.
type Event struct {
	Kind     EventKind
	ActionID models.UUID
}

// Listener receives store change events.
type Listener func(Event)

// LossReport is the result of a storage-loss probe.
type LossReport struct {
	DataLost  bool     `json:"data_lost"`
	LostCount int      `json:"lost_count"`
	LostIDs   []string `json:"lost_ids,omitempty"`
}

// Store is the persistence boundary of the queue and sync engine.
type Store interface {
	// Put inserts or overwrites an action by id and notifies subscribers.
	Put(action *models.QueuedAction) error

	// Get retrieves a single action. Returns errors.ErrActionNotFound
	// (as an AppError code) when absent.
	Get(id string) (*models.QueuedAction, error)

	// GetAll returns every action ordered by creation time ascending.
	GetAll() ([]*models.QueuedAction, error)

	// GetActive returns actions eligible for automatic sync, FIFO.
	GetActive() ([]*models.QueuedAction, error)

	// Remove deletes an action and notifies subscribers. Removing an
	// absent id is a no-op, not an error.
	Remove(id string) error

	// CountActive returns the number of actions with an active status.
	CountActive() (int, error)

	// DetectLoss compares the persisted checkpoint against live rows and
	// reports entries that vanished without going through Remove. The
	// checkpoint is re-recorded afterwards so a given loss is reported once.
	DetectLoss() (*LossReport, error)

	// Subscribe registers a listener for mutation events and returns a
	// token for Unsubscribe.
	Subscribe(l Listener) int

	// Unsubscribe removes a previously registered listener.
	Unsubscribe(token int)

	// Degraded reports whether the store is running without durability.
	Degraded() bool

	// Close releases underlying resources.
	Close() error
}

// Open opens the durable store under dataDir, falling back to a session-only
// in-memory store if SQLite is unavailable.
func Open(dataDir string) (Store, error) {
	database, err := db.Open(dataDir)
	if err != nil {
		logging.ErrorWithCode("durable store unavailable, falling back to in-memory queue",
			"STORAGE_DEGRADED", err, map[string]interface{}{"data_dir": dataDir})
		return NewMemory(), nil
	}

	s, err := NewSQLite(database)
	if err != nil {
		database.Close()
		logging.ErrorWithCode("durable store migration failed, falling back to in-memory queue",
			"STORAGE_DEGRADED", err, map[string]interface{}{"data_dir": dataDir})
		return NewMemory(), nil
	}

	return s, nil
}

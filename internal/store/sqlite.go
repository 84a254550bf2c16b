package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/baltiqcast/driversync/internal/db"
	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/models"
)

// SQLiteStore persists queued actions in the local SQLite database.
type SQLiteStore struct {
	database *db.DB
	repo     *db.Repository
	*notifier
}

// NewSQLite creates a store over an opened database, applying migrations.
func NewSQLite(database *db.DB) (*SQLiteStore, error) {
	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations", err)
	}
	if err := migrator.Up(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
	}

	return &SQLiteStore{
		database: database,
		repo:     db.NewRepository(database.DB),
		notifier: newNotifier(),
	}, nil
}

// Put inserts or overwrites an action by id.
func (s *SQLiteStore) Put(action *models.QueuedAction) error {
	if err := s.repo.UpsertQueuedAction(action); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to store action", err)
	}

	if err := s.recordCheckpoint(); err != nil {
		// Checkpoint drift makes the next probe report a false positive at
		// worst; the action itself is safely stored.
		logging.Warn("failed to update loss checkpoint after put",
			map[string]interface{}{"action_id": action.ID.String()})
	}

	s.notify(Event{Kind: EventPut, ActionID: action.ID})
	return nil
}

// Get retrieves a single action by id.
func (s *SQLiteStore) Get(id string) (*models.QueuedAction, error) {
	action, err := s.repo.GetQueuedAction(id)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrActionNotFound, fmt.Sprintf("action %s not found", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load action", err)
	}
	return action, nil
}

// GetAll returns every action ordered by creation time.
func (s *SQLiteStore) GetAll() ([]*models.QueuedAction, error) {
	actions, err := s.repo.ListQueuedActions()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list actions", err)
	}
	return actions, nil
}

// GetActive returns actions eligible for automatic sync, FIFO.
func (s *SQLiteStore) GetActive() ([]*models.QueuedAction, error) {
	actions, err := s.repo.ListActiveActions()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list active actions", err)
	}
	return actions, nil
}

// Remove deletes an action; absent ids are a no-op.
func (s *SQLiteStore) Remove(id string) error {
	if err := s.repo.DeleteQueuedAction(id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to remove action", err)
	}

	if err := s.recordCheckpoint(); err != nil {
		logging.Warn("failed to update loss checkpoint after remove",
			map[string]interface{}{"action_id": id})
	}

	s.notify(Event{Kind: EventRemove, ActionID: models.UUID(id)})
	return nil
}

// CountActive returns the number of actions counting toward the pending total.
func (s *SQLiteStore) CountActive() (int, error) {
	count, err := s.repo.CountActiveActions()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count actions", err)
	}
	return count, nil
}

// DetectLoss compares the persisted checkpoint against live rows.
// Ids recorded in the checkpoint but missing from the table were evicted
// out-of-band; every tracked removal rewrites the checkpoint first, so
// legitimate removals never show up here.
func (s *SQLiteStore) DetectLoss() (*LossReport, error) {
	cp, err := s.repo.GetCheckpoint()
	if err == sql.ErrNoRows {
		// Nothing recorded yet; establish the baseline.
		if err := s.recordCheckpoint(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to record baseline checkpoint", err)
		}
		return &LossReport{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load checkpoint", err)
	}

	var expectedIDs []string
	if err := json.Unmarshal([]byte(cp.ExpectedIDs), &expectedIDs); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "corrupt checkpoint", err)
	}

	actions, err := s.repo.ListQueuedActions()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list actions", err)
	}

	present := make(map[string]bool, len(actions))
	for _, a := range actions {
		present[a.ID.String()] = true
	}

	report := &LossReport{}
	for _, id := range expectedIDs {
		if !present[id] {
			report.DataLost = true
			report.LostCount++
			report.LostIDs = append(report.LostIDs, id)
		}
	}

	if report.DataLost {
		logging.ErrorWithCode("queued actions vanished from durable storage",
			string(apperrors.ErrStorageLoss), nil,
			map[string]interface{}{"lost_count": report.LostCount, "lost_ids": report.LostIDs})

		// Re-baseline so the same loss is not reported on every probe.
		if err := s.recordCheckpoint(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to re-record checkpoint", err)
		}
	}

	return report, nil
}

// recordCheckpoint rewrites the checkpoint to match current store contents.
func (s *SQLiteStore) recordCheckpoint() error {
	actions, err := s.repo.ListQueuedActions()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID.String())
	}

	encoded, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	return s.repo.SaveCheckpoint(&models.SyncCheckpoint{
		ExpectedCount: len(ids),
		ExpectedIDs:   string(encoded),
		RecordedAt:    time.Now().Unix(),
	})
}

// Degraded reports whether durability is unavailable. Always false here.
func (s *SQLiteStore) Degraded() bool {
	return false
}

// Close closes the repository and database.
func (s *SQLiteStore) Close() error {
	if err := s.repo.Close(); err != nil {
		s.database.Close()
		return err
	}
	return s.database.Close()
}

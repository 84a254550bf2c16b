package store

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/models"
)

// MemoryStore is the session-only fallback used when SQLite is unavailable
// (unwritable data dir, broken storage volume). Actions queued here do not
// survive a restart; Degraded lets the UI warn the driver about that.
type MemoryStore struct {
	mu       sync.RWMutex
	actions  map[models.UUID]*models.QueuedAction
	expected map[models.UUID]bool
	*notifier
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		actions:  make(map[models.UUID]*models.QueuedAction),
		expected: make(map[models.UUID]bool),
		notifier: newNotifier(),
	}
}

// Put inserts or overwrites an action by id.
func (s *MemoryStore) Put(action *models.QueuedAction) error {
	s.mu.Lock()
	clone := *action
	s.actions[action.ID] = &clone
	s.expected[action.ID] = true
	s.mu.Unlock()

	s.notify(Event{Kind: EventPut, ActionID: action.ID})
	return nil
}

// Get retrieves a single action by id.
func (s *MemoryStore) Get(id string) (*models.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	action, ok := s.actions[models.UUID(id)]
	if !ok {
		return nil, apperrors.New(apperrors.ErrActionNotFound, fmt.Sprintf("action %s not found", id))
	}
	clone := *action
	return &clone, nil
}

// GetAll returns every action ordered by creation time.
func (s *MemoryStore) GetAll() ([]*models.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(*models.QueuedAction) bool { return true }), nil
}

// GetActive returns actions eligible for automatic sync, FIFO.
func (s *MemoryStore) GetActive() ([]*models.QueuedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(a *models.QueuedAction) bool { return a.Status.IsActive() }), nil
}

// sorted returns copies of matching actions in FIFO order. Callers hold the
// read lock.
func (s *MemoryStore) sorted(match func(*models.QueuedAction) bool) []*models.QueuedAction {
	var out []*models.QueuedAction
	for _, a := range s.actions {
		if match(a) {
			clone := *a
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Remove deletes an action; absent ids are a no-op.
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	delete(s.actions, models.UUID(id))
	delete(s.expected, models.UUID(id))
	s.mu.Unlock()

	s.notify(Event{Kind: EventRemove, ActionID: models.UUID(id)})
	return nil
}

// CountActive returns the number of actions with an active status.
func (s *MemoryStore) CountActive() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.actions {
		if a.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

// DetectLoss compares the expected-id set against current contents. An
// in-memory map cannot be evicted out from under us, so this normally
// reports nothing; it exists so the probe works identically in degraded mode.
func (s *MemoryStore) DetectLoss() (*LossReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &LossReport{}
	for id := range s.expected {
		if _, ok := s.actions[id]; !ok {
			report.DataLost = true
			report.LostCount++
			report.LostIDs = append(report.LostIDs, id.String())
		}
	}

	// Re-baseline after a report, same contract as the durable store.
	if report.DataLost {
		s.expected = make(map[models.UUID]bool, len(s.actions))
		for id := range s.actions {
			s.expected[id] = true
		}
	}

	return report, nil
}

// Evict drops an entry without updating the expected set, simulating an
// out-of-band eviction so the loss probe can be exercised against this
// backend too.
func (s *MemoryStore) Evict(id models.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, id)
}

// Degraded reports that this store has no durability.
func (s *MemoryStore) Degraded() bool {
	return true
}

// Close releases nothing; present to satisfy the Store interface.
func (s *MemoryStore) Close() error {
	return nil
}

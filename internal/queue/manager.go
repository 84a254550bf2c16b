// Package queue provides the ingress API feature code uses to submit driver
// actions without knowing whether the network is currently available.
//
// Enqueue-then-sync gives a single code path regardless of connectivity: the
// action always lands in the durable store first, and the sync engine drains
// it whenever the network allows. Trying the network first and queueing on
// failure would give offline and online submissions different ordering and
// retry semantics.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/models"
	"github.com/baltiqcast/driversync/internal/store"
	"github.com/baltiqcast/driversync/internal/uuid"
)

// Manager is the write side of the offline action queue.
type Manager struct {
	store store.Store

	mu        sync.Mutex
	lastStamp int64
}

// NewManager creates a Manager over the given store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Enqueue records a new action and returns its id. No network I/O happens
// here; the call succeeds as long as the store accepts the write.
func (m *Manager) Enqueue(actionType models.ActionType, payload interface{}) (models.UUID, error) {
	if actionType == "" {
		return "", apperrors.New(apperrors.ErrActionInvalid, "action type must not be empty")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrActionInvalid, "payload is not serializable", err)
	}

	now := m.stamp()
	action := &models.QueuedAction{
		ID:         models.UUID(uuid.New()),
		ActionType: actionType,
		Payload:    raw,
		Attempts:   0,
		Status:     models.ActionStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.store.Put(action); err != nil {
		return "", err
	}

	logging.Debug("action enqueued", map[string]interface{}{
		"action_id":   action.ID.String(),
		"action_type": string(actionType),
	})

	return action.ID, nil
}

// stamp returns a strictly increasing unix-nanosecond timestamp. CreatedAt
// is the FIFO key, so two actions enqueued back-to-back must never tie.
func (m *Manager) stamp() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixNano()
	if now <= m.lastStamp {
		now = m.lastStamp + 1
	}
	m.lastStamp = now
	return now
}

// PendingCount returns how many actions are awaiting sync. Conflict entries
// are excluded; they are shown separately and need user attention, not a
// retry counter.
func (m *Manager) PendingCount() (int, error) {
	return m.store.CountActive()
}

// PendingActions returns the actions awaiting sync in FIFO order, for the
// "N actions awaiting sync" listing.
func (m *Manager) PendingActions() ([]*models.QueuedAction, error) {
	return m.store.GetActive()
}

// Conflicts returns the entries needing user attention.
func (m *Manager) Conflicts() ([]*models.QueuedAction, error) {
	all, err := m.store.GetAll()
	if err != nil {
		return nil, err
	}

	var conflicts []*models.QueuedAction
	for _, a := range all {
		if a.Status == models.ActionStatusConflict {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts, nil
}

// DismissConflict removes a conflict entry after the driver has reviewed it.
// This is deliberate data discard, so it refuses to touch entries in any
// other status.
func (m *Manager) DismissConflict(id string) error {
	action, err := m.store.Get(id)
	if err != nil {
		return err
	}

	if action.Status != models.ActionStatusConflict {
		return apperrors.New(apperrors.ErrNotConflict, "only conflict entries can be dismissed")
	}

	if err := m.store.Remove(id); err != nil {
		return err
	}

	logging.Info("conflict dismissed by user", map[string]interface{}{
		"action_id":   id,
		"action_type": string(action.ActionType),
		"last_error":  action.LastError,
	})

	return nil
}

// RetryConflict returns a conflict entry to the automatic retry pool with a
// fresh attempt budget. Only ever user-initiated; the engine never does this.
func (m *Manager) RetryConflict(id string) error {
	action, err := m.store.Get(id)
	if err != nil {
		return err
	}

	if action.Status != models.ActionStatusConflict {
		return apperrors.New(apperrors.ErrNotConflict, "only conflict entries can be retried")
	}

	action.Status = models.ActionStatusPending
	action.Attempts = 0
	action.LastError = ""
	action.UpdatedAt = time.Now().UnixNano()

	if err := m.store.Put(action); err != nil {
		return err
	}

	logging.Info("conflict returned to retry pool by user", map[string]interface{}{
		"action_id": id,
	})

	return nil
}

// Subscribe registers a listener for store change events.
func (m *Manager) Subscribe(l store.Listener) int {
	return m.store.Subscribe(l)
}

// Unsubscribe removes a listener.
func (m *Manager) Unsubscribe(token int) {
	m.store.Unsubscribe(token)
}

// Degraded reports whether the backing store lost durability.
func (m *Manager) Degraded() bool {
	return m.store.Degraded()
}

// Package handlers provides the REST surface the portal UI shell talks to.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/models"
	"github.com/baltiqcast/driversync/internal/queue"
	syncpkg "github.com/baltiqcast/driversync/internal/sync"
	"github.com/baltiqcast/driversync/internal/watch"
)

// WSBroadcaster is the hub surface the handlers push events through.
// sync.started is not here: it is emitted from the banner subscription when
// a drain actually begins, so an overlapping trigger cannot fake one.
type WSBroadcaster interface {
	BroadcastSyncCompleted(result *syncpkg.Result)
	BroadcastSyncFailed(errMsg string)
	BroadcastConflictDetected(ids []string)
	BroadcastConnectivityChanged(online bool)
}

// QueueHandler serves queue, sync, conflict, and connectivity endpoints.
type QueueHandler struct {
	manager *queue.Manager
	watcher *watch.Watcher
	ws      WSBroadcaster
}

// NewQueueHandler creates a QueueHandler. The broadcaster may be nil in
// tests.
func NewQueueHandler(manager *queue.Manager, watcher *watch.Watcher, ws WSBroadcaster) *QueueHandler {
	return &QueueHandler{
		manager: manager,
		watcher: watcher,
		ws:      ws,
	}
}

// Queue handles the action queue collection.
//
//	GET  /queue  pending actions, FIFO
//	POST /queue  enqueue {action_type, payload}
func (h *QueueHandler) Queue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		actions, err := h.manager.PendingActions()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"actions": actionList(actions),
		})

	case http.MethodPost:
		var request struct {
			ActionType models.ActionType `json:"action_type"`
			Payload    json.RawMessage   `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		id, err := h.manager.Enqueue(request.ActionType, request.Payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id": id.String(),
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Count handles GET /queue/count. The degraded flag tells the UI the queue
// is session-only because durable storage was unavailable.
func (h *QueueHandler) Count(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := h.manager.PendingCount()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending_count": count,
		"degraded":      h.manager.Degraded(),
	})
}

// Conflicts handles GET /conflicts.
func (h *QueueHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conflicts, err := h.manager.Conflicts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": actionList(conflicts),
	})
}

// DismissConflict handles POST /conflicts/dismiss with {"id": "..."}.
func (h *QueueHandler) DismissConflict(w http.ResponseWriter, r *http.Request) {
	id, ok := conflictID(w, r)
	if !ok {
		return
	}

	if err := h.manager.DismissConflict(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "dismissed",
		"id":     id,
	})
}

// RetryConflict handles POST /conflicts/retry with {"id": "..."}. The entry
// goes back to pending and drains on the next sync.
func (h *QueueHandler) RetryConflict(w http.ResponseWriter, r *http.Request) {
	id, ok := conflictID(w, r)
	if !ok {
		return
	}

	if err := h.manager.RetryConflict(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "queued",
		"id":     id,
	})
}

// Sync handles POST /sync, the manual drain trigger behind the banner's
// retry button.
func (h *QueueHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.watcher.SyncNow(r.Context())
	if err != nil {
		// An overlapping trigger is not a failed drain; the in-flight one
		// owns the event stream.
		if h.ws != nil && !apperrors.Is(err, apperrors.ErrSyncInProgress) {
			h.ws.BroadcastSyncFailed(err.Error())
		}
		writeError(w, err)
		return
	}

	if h.ws != nil {
		h.ws.BroadcastSyncCompleted(result)
		if len(result.Conflicts) > 0 {
			ids := make([]string, len(result.Conflicts))
			for i, id := range result.Conflicts {
				ids[i] = id.String()
			}
			h.ws.BroadcastConflictDetected(ids)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"succeeded":   len(result.Success),
		"failed":      len(result.Failed),
		"conflicts":   len(result.Conflicts),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// Connectivity handles POST /connectivity with {"online": bool}. The UI
// shell forwards browser online/offline transitions here.
func (h *QueueHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Online == nil {
		http.Error(w, "online is required", http.StatusBadRequest)
		return
	}

	h.watcher.SetOnline(*request.Online)
	if h.ws != nil {
		h.ws.BroadcastConnectivityChanged(*request.Online)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online": *request.Online,
	})
}

// Status handles GET /status: everything the UI needs to render the banner
// and the queue badge in one call.
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := h.manager.PendingCount()
	if err != nil {
		writeError(w, err)
		return
	}

	loss := h.watcher.LossReport()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"banner":        string(h.watcher.State()),
		"online":        h.watcher.Online(),
		"pending_count": count,
		"degraded":      h.manager.Degraded(),
		"storage_loss":  loss,
	})
}

// AcknowledgeLoss handles POST /storage/loss/ack.
func (h *QueueHandler) AcknowledgeLoss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.watcher.AcknowledgeLoss()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "acknowledged",
	})
}

// Health handles GET /health.
func (h *QueueHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "driversyncd",
	})
}

// conflictID extracts the action id from a conflict mutation request.
func conflictID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}

	var request struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return "", false
	}
	return request.ID, true
}

// actionList normalizes a nil slice so the UI always gets an array.
func actionList(actions []*models.QueuedAction) []*models.QueuedAction {
	if actions == nil {
		return []*models.QueuedAction{}
	}
	return actions
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("failed to encode response", err)
	}
}

// writeError maps application error codes onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ErrInternal

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.ErrActionNotFound, apperrors.ErrNotFound:
			status = http.StatusNotFound
		case apperrors.ErrActionInvalid, apperrors.ErrNotConflict, apperrors.ErrValidation, apperrors.ErrInvalid:
			status = http.StatusBadRequest
		case apperrors.ErrSyncInProgress:
			status = http.StatusConflict
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(code),
	})
}

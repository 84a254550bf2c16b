package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/logging"
	"github.com/baltiqcast/driversync/internal/models"
	"github.com/baltiqcast/driversync/internal/store"
)

// Result partitions one drain's outcomes. Every processed action id lands in
// exactly one of the three lists.
type Result struct {
	Success   []models.UUID `json:"success"`
	Failed    []models.UUID `json:"failed"`
	Conflicts []models.UUID `json:"conflicts"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Options holds drain policy.
type Options struct {
	// MaxAttempts bounds transient retries. Once an action has failed this
	// many times it is parked as a conflict so the queue cannot spin
	// forever. The value is policy, not protocol; see config defaults.
	MaxAttempts int

	// ExecutorTimeout bounds a single executor call. Expired calls count as
	// retryable, never conflict, because the true server-side outcome is
	// unknown.
	ExecutorTimeout time.Duration
}

// Engine drains queued actions against registered executors.
type Engine struct {
	store    store.Store
	registry *Registry
	opts     Options

	mu      sync.Mutex
	syncing bool
}

// NewEngine creates an Engine over the given store and executor registry.
func NewEngine(s store.Store, registry *Registry, opts Options) *Engine {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 10
	}
	if opts.ExecutorTimeout <= 0 {
		opts.ExecutorTimeout = 30 * time.Second
	}
	return &Engine{
		store:    s,
		registry: registry,
		opts:     opts,
	}
}

// Syncing reports whether a drain is currently in flight.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// Sync drains all active actions in FIFO order and returns the partitioned
// result. Safe to call while offline: executors fail retryably and every
// action simply stays queued.
//
// Only one drain runs at a time. A second call while one is in flight
// returns ErrSyncInProgress without touching the queue, so no action is
// ever submitted twice concurrently.
//
// Per-action failures never surface as an error from Sync; they are
// captured in the Result. An error return means the store itself failed or
// a drain was already running.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "a drain is already in flight")
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	result := &Result{
		Success:   []models.UUID{},
		Failed:    []models.UUID{},
		Conflicts: []models.UUID{},
		StartTime: time.Now(),
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	actions, err := e.store.GetActive()
	if err != nil {
		return nil, err
	}

	if len(actions) == 0 {
		return result, nil
	}

	logging.Info("draining action queue", map[string]interface{}{
		"pending": len(actions),
	})

	for _, action := range actions {
		select {
		case <-ctx.Done():
			// Anything not reached stays queued; the drain is resumable
			// because executors are idempotent.
			logging.Warn("drain interrupted", map[string]interface{}{
				"processed": len(result.Success) + len(result.Failed) + len(result.Conflicts),
				"remaining": len(actions),
			})
			return result, nil
		default:
		}

		e.processAction(ctx, action, result)
	}

	logging.Info("drain finished", map[string]interface{}{
		"success":   len(result.Success),
		"failed":    len(result.Failed),
		"conflicts": len(result.Conflicts),
		"duration":  result.Duration.String(),
	})

	return result, nil
}

// processAction executes one queued action and routes the outcome back into
// the store.
func (e *Engine) processAction(ctx context.Context, action *models.QueuedAction, result *Result) {
	// Mark syncing first: if the process dies mid-call the entry is still
	// active and gets re-drained next session.
	action.Status = models.ActionStatusSyncing
	action.UpdatedAt = time.Now().UnixNano()
	if err := e.store.Put(action); err != nil {
		logging.Error("failed to mark action syncing", err, map[string]interface{}{
			"action_id": action.ID.String(),
		})
		result.Failed = append(result.Failed, action.ID)
		return
	}

	exec, ok := e.registry.Get(action.ActionType)
	if !ok {
		// No executor can ever handle this entry; park it for the user
		// rather than retrying forever.
		e.markConflict(action, fmt.Sprintf("no executor registered for action type %q", action.ActionType))
		result.Conflicts = append(result.Conflicts, action.ID)
		return
	}

	outcome := e.invoke(ctx, exec, action)

	switch outcome.Kind {
	case OutcomeOK:
		if err := e.store.Remove(action.ID.String()); err != nil {
			// The backend applied the change but the local row stuck
			// around. Leaving it pending is safe: the executor is
			// idempotent and the next drain will clear it.
			logging.Error("failed to remove synced action", err, map[string]interface{}{
				"action_id": action.ID.String(),
			})
			result.Failed = append(result.Failed, action.ID)
			return
		}
		result.Success = append(result.Success, action.ID)

	case OutcomeConflict:
		e.markConflict(action, outcome.Message)
		result.Conflicts = append(result.Conflicts, action.ID)

	default: // OutcomeRetryable
		action.Attempts++
		action.LastError = outcome.Message
		action.UpdatedAt = time.Now().UnixNano()

		if action.Attempts >= e.opts.MaxAttempts {
			// Retry budget exhausted; park for user attention instead of
			// spinning on every future drain.
			e.markConflict(action, fmt.Sprintf("gave up after %d attempts: %s", action.Attempts, outcome.Message))
			result.Conflicts = append(result.Conflicts, action.ID)
			return
		}

		action.Status = models.ActionStatusPending
		if err := e.store.Put(action); err != nil {
			logging.Error("failed to reschedule action", err, map[string]interface{}{
				"action_id": action.ID.String(),
			})
		}
		result.Failed = append(result.Failed, action.ID)

		logging.Debug("action failed, will retry", map[string]interface{}{
			"action_id": action.ID.String(),
			"attempts":  action.Attempts,
			"error":     outcome.Message,
		})
	}
}

// invoke runs one executor call with the per-call timeout and converts
// panics into retryable outcomes: an executor crash leaves the server-side
// effect unknown, which is exactly what retryable means.
func (e *Engine) invoke(ctx context.Context, exec Executor, action *models.QueuedAction) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithCode("executor panicked", string(apperrors.ErrSyncFailed), nil,
				map[string]interface{}{
					"action_id":   action.ID.String(),
					"action_type": string(action.ActionType),
					"panic":       fmt.Sprint(r),
				})
			outcome = Retry(fmt.Errorf("executor panic: %v", r))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, e.opts.ExecutorTimeout)
	defer cancel()

	outcome = exec(callCtx, action.Payload)

	if outcome.Kind == OutcomeConflict && callCtx.Err() == context.DeadlineExceeded {
		// A timed-out call must not be treated as a semantic rejection;
		// the true outcome is unknown.
		outcome = Retry(fmt.Errorf("executor timed out after %s", e.opts.ExecutorTimeout))
	}

	return outcome
}

// markConflict parks an action for user attention.
func (e *Engine) markConflict(action *models.QueuedAction, message string) {
	action.Status = models.ActionStatusConflict
	action.LastError = message
	action.UpdatedAt = time.Now().UnixNano()

	if err := e.store.Put(action); err != nil {
		logging.Error("failed to mark action conflicted", err, map[string]interface{}{
			"action_id": action.ID.String(),
		})
		return
	}

	logging.Warn("action parked as conflict", map[string]interface{}{
		"action_id":   action.ID.String(),
		"action_type": string(action.ActionType),
		"reason":      message,
	})
}

// Package sync drains the offline action queue against backend executors.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/baltiqcast/driversync/internal/errors"
	"github.com/baltiqcast/driversync/internal/models"
)

// OutcomeKind classifies the result of one executor invocation.
type OutcomeKind int

const (
	// OutcomeOK means the backend applied the mutation.
	OutcomeOK OutcomeKind = iota
	// OutcomeRetryable means a transient failure (network unreachable,
	// timeout, 5xx). The action stays queued for the next drain.
	OutcomeRetryable
	// OutcomeConflict means the backend rejected the mutation semantically
	// (already applied, superseded, target deleted). Never auto-retried.
	OutcomeConflict
)

// Outcome is the result of executing one queued action.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// OK reports a successfully applied mutation.
func OK() Outcome {
	return Outcome{Kind: OutcomeOK}
}

// Retry reports a transient failure.
func Retry(err error) Outcome {
	msg := "transient failure"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: OutcomeRetryable, Message: msg}
}

// Conflict reports a semantic rejection by the backend.
func Conflict(message string) Outcome {
	return Outcome{Kind: OutcomeConflict, Message: message}
}

// Executor performs the real backend mutation for one action type. Executors
// must be idempotent: the engine guarantees at-least-once invocation, and a
// network failure after the server applied the change will cause a repeat.
type Executor func(ctx context.Context, payload json.RawMessage) Outcome

// Registry maps action types to their executors. Feature code registers all
// executors at startup; the engine parks any stored action whose type has no
// executor as a conflict, since it can never succeed.
type Registry struct {
	executors map[models.ActionType]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.ActionType]Executor)}
}

// Register binds an executor to an action type. Double registration is a
// programming error and is rejected.
func (r *Registry) Register(actionType models.ActionType, exec Executor) error {
	if actionType == "" {
		return apperrors.New(apperrors.ErrInvalid, "action type must not be empty")
	}
	if exec == nil {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("nil executor for %q", actionType))
	}
	if _, exists := r.executors[actionType]; exists {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("executor already registered for %q", actionType))
	}

	r.executors[actionType] = exec
	return nil
}

// Get returns the executor for an action type, if registered.
func (r *Registry) Get(actionType models.ActionType) (Executor, bool) {
	exec, ok := r.executors[actionType]
	return exec, ok
}

// Types returns all registered action types.
func (r *Registry) Types() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}

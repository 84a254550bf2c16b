// Package models provides data model definitions for the driver sync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// ActionType identifies which executor handles a queued action.
type ActionType string

const (
	ActionCompleteDelivery       ActionType = "complete_delivery"
	ActionSaveVisualVerification ActionType = "save_visual_verification"
	ActionLoadElement            ActionType = "load_element"
	ActionReportIssue            ActionType = "report_issue"
)

// ActionStatus represents the lifecycle state of a queued action.
type ActionStatus string

const (
	// ActionStatusPending means the action is waiting to be drained.
	ActionStatusPending ActionStatus = "pending"
	// ActionStatusSyncing means a drain is currently executing the action.
	ActionStatusSyncing ActionStatus = "syncing"
	// ActionStatusFailed means the last attempt hit a retryable error.
	ActionStatusFailed ActionStatus = "failed"
	// ActionStatusConflict means the backend rejected the action semantically.
	// Conflict entries are excluded from automatic drains until the user
	// dismisses or explicitly retries them.
	ActionStatusConflict ActionStatus = "conflict"
)

// IsActive reports whether a status counts toward the pending total and is
// eligible for automatic sync. Conflict entries are deliberately excluded.
func (s ActionStatus) IsActive() bool {
	return s == ActionStatusPending || s == ActionStatusSyncing || s == ActionStatusFailed
}

// QueuedAction represents a single user-initiated mutation recorded for
// later execution against the backend.
type QueuedAction struct {
	ID         UUID            `db:"id" json:"id"`
	ActionType ActionType      `db:"action_type" json:"action_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Attempts   int             `db:"attempts" json:"attempts"`
	Status     ActionStatus    `db:"status" json:"status"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	// CreatedAt and UpdatedAt are unix nanoseconds. CreatedAt is the FIFO
	// key, so it needs enough resolution to order actions enqueued
	// back-to-back.
	CreatedAt int64 `db:"created_at" json:"created_at"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for QueuedAction.
func (QueuedAction) TableName() string {
	return "action_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (a *QueuedAction) CreatedAtTime() time.Time {
	return time.Unix(0, a.CreatedAt)
}

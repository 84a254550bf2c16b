// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"strings"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		// General errors
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},

		// Database errors
		{"database", ErrDatabase},
		{"migration", ErrMigration},
		{"constraint", ErrConstraint},

		// Queue errors
		{"action not found", ErrActionNotFound},
		{"action invalid", ErrActionInvalid},
		{"unknown action type", ErrUnknownActionType},
		{"not conflict", ErrNotConflict},

		// Sync errors
		{"sync in progress", ErrSyncInProgress},
		{"sync failed", ErrSyncFailed},
		{"sync conflict", ErrSyncConflict},
		{"sync timeout", ErrSyncTimeout},

		// Storage errors
		{"storage unavailable", ErrStorageUnavailable},
		{"storage degraded", ErrStorageDegraded},
		{"storage loss", ErrStorageLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.code) == "" {
				t.Errorf("error code %s has empty value", tt.name)
			}
		})
	}
}

// TestAppError_Error verifies the formatted message with and without a cause.
func TestAppError_Error(t *testing.T) {
	withoutCause := New(ErrSyncFailed, "drain aborted")
	if got := withoutCause.Error(); got != "[SYNC_FAILED] drain aborted" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("connection refused")
	withCause := Wrap(ErrSyncFailed, "drain aborted", cause)
	if got := withCause.Error(); !strings.Contains(got, "connection refused") {
		t.Errorf("Error() = %q, want cause included", got)
	}
}

// TestAppError_Unwrap verifies errors.Is works through the wrapper.
func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrDatabase, "write failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

// TestIs verifies code matching.
func TestIs(t *testing.T) {
	err := New(ErrStorageLoss, "2 actions missing")

	if !Is(err, ErrStorageLoss) {
		t.Error("Is() should match the error's own code")
	}
	if Is(err, ErrSyncFailed) {
		t.Error("Is() should not match a different code")
	}
	if Is(errors.New("plain"), ErrStorageLoss) {
		t.Error("Is() should not match a non-AppError")
	}
}

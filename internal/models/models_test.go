// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestUUID_Value verifies the Value() method returns the raw string.
func TestUUID_Value(t *testing.T) {
	uuid := UUID("123e4567-e89b-42d3-a456-426614174000")

	val, err := uuid.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	if val != "123e4567-e89b-42d3-a456-426614174000" {
		t.Errorf("Value() = %v, want '123e4567-e89b-42d3-a456-426614174000'", val)
	}
}

// TestUUID_Scan_nil verifies nil value handling.
func TestUUID_Scan_nil(t *testing.T) {
	var uuid UUID
	if err := uuid.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error = %v", err)
	}

	if uuid != "" {
		t.Errorf("Scan(nil) = %q, want empty string", uuid)
	}
}

// TestUUID_Scan_bytes verifies []byte handling.
func TestUUID_Scan_bytes(t *testing.T) {
	var uuid UUID
	if err := uuid.Scan([]byte("123e4567-e89b-42d3-a456-426614174000")); err != nil {
		t.Fatalf("Scan([]byte) error = %v", err)
	}

	if uuid != "123e4567-e89b-42d3-a456-426614174000" {
		t.Errorf("Scan([]byte) = %q", uuid)
	}
}

// TestUUID_Scan_string verifies string handling.
func TestUUID_Scan_string(t *testing.T) {
	var uuid UUID
	if err := uuid.Scan("123e4567-e89b-42d3-a456-426614174000"); err != nil {
		t.Fatalf("Scan(string) error = %v", err)
	}

	if uuid != "123e4567-e89b-42d3-a456-426614174000" {
		t.Errorf("Scan(string) = %q", uuid)
	}
}

// TestActionStatus_IsActive verifies which statuses count as active.
func TestActionStatus_IsActive(t *testing.T) {
	tests := []struct {
		name   string
		status ActionStatus
		want   bool
	}{
		{"pending is active", ActionStatusPending, true},
		{"syncing is active", ActionStatusSyncing, true},
		{"failed is active", ActionStatusFailed, true},
		{"conflict is not active", ActionStatusConflict, false},
		{"unknown is not active", ActionStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestQueuedAction_TableName verifies the table name.
func TestQueuedAction_TableName(t *testing.T) {
	if got := (QueuedAction{}).TableName(); got != "action_queue" {
		t.Errorf("TableName() = %q, want 'action_queue'", got)
	}
}

// TestQueuedAction_CreatedAtTime verifies nanosecond timestamp conversion.
func TestQueuedAction_CreatedAtTime(t *testing.T) {
	now := time.Now().UnixNano()
	action := &QueuedAction{CreatedAt: now}

	if got := action.CreatedAtTime().UnixNano(); got != now {
		t.Errorf("CreatedAtTime().UnixNano() = %d, want %d", got, now)
	}
}

// TestQueuedAction_JSONRoundTrip verifies the payload survives marshaling.
func TestQueuedAction_JSONRoundTrip(t *testing.T) {
	action := &QueuedAction{
		ID:         UUID("123e4567-e89b-42d3-a456-426614174000"),
		ActionType: ActionCompleteDelivery,
		Payload:    json.RawMessage(`{"delivery_id":"d-17","signature_ref":"sig/17.png"}`),
		Status:     ActionStatusPending,
		CreatedAt:  time.Now().Unix(),
	}

	data, err := json.Marshal(action)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var decoded QueuedAction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}

	if decoded.ID != action.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, action.ID)
	}
	if decoded.ActionType != ActionCompleteDelivery {
		t.Errorf("ActionType = %q, want %q", decoded.ActionType, ActionCompleteDelivery)
	}
	if string(decoded.Payload) != string(action.Payload) {
		t.Errorf("Payload = %s, want %s", decoded.Payload, action.Payload)
	}
}

// TestSyncCheckpoint_TableName verifies the table name.
func TestSyncCheckpoint_TableName(t *testing.T) {
	if got := (SyncCheckpoint{}).TableName(); got != "sync_checkpoint" {
		t.Errorf("TableName() = %q, want 'sync_checkpoint'", got)
	}
}

// TestSyncCheckpoint_RecordedAtTime verifies unix timestamp conversion.
func TestSyncCheckpoint_RecordedAtTime(t *testing.T) {
	now := time.Now().Unix()
	cp := &SyncCheckpoint{RecordedAt: now}

	if got := cp.RecordedAtTime().Unix(); got != now {
		t.Errorf("RecordedAtTime().Unix() = %d, want %d", got, now)
	}
}

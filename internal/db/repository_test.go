// Package db tests for repository operations.
package db

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/baltiqcast/driversync/internal/models"
	"github.com/baltiqcast/driversync/internal/uuid"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()

	database := setupMigratedDB(t)
	repo := NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestAction(actionType models.ActionType, createdAt int64) *models.QueuedAction {
	return &models.QueuedAction{
		ID:         models.UUID(uuid.New()),
		ActionType: actionType,
		Payload:    json.RawMessage(`{"delivery_id":"d-1"}`),
		Status:     models.ActionStatusPending,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

// TestUpsertAndGetQueuedAction verifies basic round trip.
func TestUpsertAndGetQueuedAction(t *testing.T) {
	repo := setupRepository(t)

	action := newTestAction(models.ActionCompleteDelivery, time.Now().Unix())
	if err := repo.UpsertQueuedAction(action); err != nil {
		t.Fatalf("UpsertQueuedAction failed: %v", err)
	}

	got, err := repo.GetQueuedAction(action.ID.String())
	if err != nil {
		t.Fatalf("GetQueuedAction failed: %v", err)
	}

	if got.ID != action.ID {
		t.Errorf("ID = %q, want %q", got.ID, action.ID)
	}
	if got.ActionType != models.ActionCompleteDelivery {
		t.Errorf("ActionType = %q, want complete_delivery", got.ActionType)
	}
	if string(got.Payload) != `{"delivery_id":"d-1"}` {
		t.Errorf("Payload = %s", got.Payload)
	}
	if got.Status != models.ActionStatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
}

// TestUpsertOverwritesById verifies upsert semantics.
func TestUpsertOverwritesById(t *testing.T) {
	repo := setupRepository(t)

	action := newTestAction(models.ActionLoadElement, time.Now().Unix())
	if err := repo.UpsertQueuedAction(action); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	action.Status = models.ActionStatusConflict
	action.Attempts = 3
	action.LastError = "delivery already finalized"
	if err := repo.UpsertQueuedAction(action); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := repo.GetQueuedAction(action.ID.String())
	if err != nil {
		t.Fatalf("GetQueuedAction failed: %v", err)
	}
	if got.Status != models.ActionStatusConflict {
		t.Errorf("Status = %q, want conflict", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", got.Attempts)
	}
	if got.LastError != "delivery already finalized" {
		t.Errorf("LastError = %q", got.LastError)
	}

	all, err := repo.ListQueuedActions()
	if err != nil {
		t.Fatalf("ListQueuedActions failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len = %d, want 1 (no duplicate from upsert)", len(all))
	}
}

// TestListQueuedActionsFIFO verifies created_at ordering.
func TestListQueuedActionsFIFO(t *testing.T) {
	repo := setupRepository(t)

	base := time.Now().Unix()
	third := newTestAction(models.ActionReportIssue, base+20)
	first := newTestAction(models.ActionLoadElement, base)
	second := newTestAction(models.ActionCompleteDelivery, base+10)

	// Insert out of order
	for _, a := range []*models.QueuedAction{third, first, second} {
		if err := repo.UpsertQueuedAction(a); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	got, err := repo.ListQueuedActions()
	if err != nil {
		t.Fatalf("ListQueuedActions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	want := []models.UUID{first.ID, second.ID, third.ID}
	for i, a := range got {
		if a.ID != want[i] {
			t.Errorf("position %d = %q, want %q", i, a.ID, want[i])
		}
	}
}

// TestListActiveExcludesConflict verifies conflict entries are filtered.
func TestListActiveExcludesConflict(t *testing.T) {
	repo := setupRepository(t)

	active := newTestAction(models.ActionCompleteDelivery, time.Now().Unix())
	conflicted := newTestAction(models.ActionCompleteDelivery, time.Now().Unix()+1)
	conflicted.Status = models.ActionStatusConflict

	if err := repo.UpsertQueuedAction(active); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertQueuedAction(conflicted); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListActiveActions()
	if err != nil {
		t.Fatalf("ListActiveActions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != active.ID {
		t.Errorf("active id = %q, want %q", got[0].ID, active.ID)
	}

	count, err := repo.CountActiveActions()
	if err != nil {
		t.Fatalf("CountActiveActions failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

// TestDeleteQueuedAction verifies delete and absent-id no-op.
func TestDeleteQueuedAction(t *testing.T) {
	repo := setupRepository(t)

	action := newTestAction(models.ActionCompleteDelivery, time.Now().Unix())
	if err := repo.UpsertQueuedAction(action); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteQueuedAction(action.ID.String()); err != nil {
		t.Fatalf("DeleteQueuedAction failed: %v", err)
	}

	if _, err := repo.GetQueuedAction(action.ID.String()); err != sql.ErrNoRows {
		t.Errorf("GetQueuedAction after delete: err = %v, want sql.ErrNoRows", err)
	}

	// Deleting again must not be an error
	if err := repo.DeleteQueuedAction(action.ID.String()); err != nil {
		t.Errorf("delete of absent id should be a no-op, got %v", err)
	}
}

// TestCheckpointRoundTrip verifies checkpoint save/load.
func TestCheckpointRoundTrip(t *testing.T) {
	repo := setupRepository(t)

	if _, err := repo.GetCheckpoint(); err != sql.ErrNoRows {
		t.Fatalf("GetCheckpoint on empty table: err = %v, want sql.ErrNoRows", err)
	}

	cp := &models.SyncCheckpoint{
		ExpectedCount: 2,
		ExpectedIDs:   `["a","b"]`,
	}
	if err := repo.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	got, err := repo.GetCheckpoint()
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got.ExpectedCount != 2 {
		t.Errorf("ExpectedCount = %d, want 2", got.ExpectedCount)
	}
	if got.ExpectedIDs != `["a","b"]` {
		t.Errorf("ExpectedIDs = %q", got.ExpectedIDs)
	}

	// Overwrite keeps a single row
	cp.ExpectedCount = 0
	cp.ExpectedIDs = `[]`
	if err := repo.SaveCheckpoint(cp); err != nil {
		t.Fatalf("second SaveCheckpoint failed: %v", err)
	}

	got, err = repo.GetCheckpoint()
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got.ExpectedCount != 0 {
		t.Errorf("ExpectedCount = %d, want 0 after overwrite", got.ExpectedCount)
	}
}

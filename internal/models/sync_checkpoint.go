// Package models provides data model definitions for the driver sync core.
package models

import "time"

// SyncCheckpoint records the set of action ids the store is expected to
// contain. Some mobile storage backends silently evict data under memory
// pressure; comparing the checkpoint against live rows is how that loss is
// detected. The checkpoint is rewritten on every tracked mutation so that
// legitimate removals (success, dismiss) never count as loss.
type SyncCheckpoint struct {
	ID            int    `db:"id" json:"id"`
	ExpectedCount int    `db:"expected_count" json:"expected_count"`
	ExpectedIDs   string `db:"expected_ids" json:"expected_ids"` // JSON array of action ids
	RecordedAt    int64  `db:"recorded_at" json:"recorded_at"`
}

// TableName returns the table name for SyncCheckpoint.
func (SyncCheckpoint) TableName() string {
	return "sync_checkpoint"
}

// RecordedAtTime returns RecordedAt as time.Time.
func (c *SyncCheckpoint) RecordedAtTime() time.Time {
	return time.Unix(c.RecordedAt, 0)
}

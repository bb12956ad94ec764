// Package models defines client-side data models persisted in the local
// SQLite cache.
package models

import "time"

// Snapshot is the most recent local copy of an editing session. Data holds
// the serialized (optionally sealed) form value. DraftID and BaseVersion are
// hints for the next save; the server still checks them.
type Snapshot struct {
	Key         string
	Data        []byte
	DraftID     string
	BaseVersion int64
	// Pending is true while the value has not been confirmed by the server.
	Pending   bool
	UpdatedAt time.Time
}

// Backup is an append-only safety copy of a form value.
type Backup struct {
	ID        string
	FormKey   string
	Data      []byte
	CreatedAt time.Time
}

// TimeLayout is the fixed-width UTC layout of stored timestamps, so that
// they sort as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

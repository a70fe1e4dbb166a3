package domain

import "time"

// EntityKind names the table a change record points into.
type EntityKind string

const (
	EntityNote        EntityKind = "notes"
	EntityPlacement   EntityKind = "notes_tree"
	EntityNoteHistory EntityKind = "notes_history"
)

type ChangeRecord struct {
	ID         int64      `json:"id"`
	EntityName EntityKind `json:"entity_name"`
	EntityID   string     `json:"entity_id"`
	ChangedAt  time.Time  `json:"sync_date"`
}

type ChangesResponse struct {
	Changes  []*ChangeRecord `json:"changes"`
	LastID   int64           `json:"last_sync_id"`
	SyncTime time.Time       `json:"sync_time"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Placement is one position of a note in the tree. A note can have several.
type Placement struct {
	ID         string    `json:"note_tree_id"`
	NoteID     string    `json:"note_id"`
	ParentID   *string   `json:"note_pid"`
	Position   int       `json:"note_pos"`
	IsExpanded bool      `json:"is_expanded"`
	IsDeleted  bool      `json:"is_deleted"`
	ModifiedAt time.Time `json:"date_modified"`
}

func NewPlacementID() string {
	return uuid.New().String()
}

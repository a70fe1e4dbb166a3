package domain

import (
	"time"

	"github.com/google/uuid"
)

type Note struct {
	ID          string    `json:"note_id"`
	Title       string    `json:"note_title"`
	Text        []byte    `json:"note_text"`
	IsProtected bool      `json:"is_protected"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"date_created"`
	ModifiedAt  time.Time `json:"date_modified"`
}

// InsertTarget tells Create where the new placement goes among its siblings.
type InsertTarget string

const (
	TargetInto  InsertTarget = "into"
	TargetAfter InsertTarget = "after"
)

type CreateNoteRequest struct {
	Title             string       `json:"note_title"`
	IsProtected       bool         `json:"is_protected"`
	Target            InsertTarget `json:"target" validate:"required"`
	TargetPlacementID string       `json:"target_note_tree_id" validate:"required_if=Target after"`
}

type CreateNoteResponse struct {
	NoteID      string `json:"note_id"`
	PlacementID string `json:"note_tree_id"`
}

type Attachment struct {
	ID       string `json:"image_id" validate:"required"`
	MimeType string `json:"mime_type"`
	Data     string `json:"image_data"`
}

type UpdateNoteRequest struct {
	Title       string       `json:"note_title"`
	Text        []byte       `json:"note_text"`
	IsProtected bool         `json:"is_protected"`
	Images      []Attachment `json:"images" validate:"dive"`
	// Links are accepted for wire compatibility and not persisted.
	Links []string `json:"links,omitempty"`
}

type ProtectRequest struct {
	Protect bool `json:"protect"`
}

type NoteResponse struct {
	ID          string    `json:"note_id"`
	Title       string    `json:"note_title"`
	Text        []byte    `json:"note_text"`
	IsProtected bool      `json:"is_protected"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"date_created"`
	ModifiedAt  time.Time `json:"date_modified"`
}

func (n *Note) ToResponse() *NoteResponse {
	return &NoteResponse{
		ID:          n.ID,
		Title:       n.Title,
		Text:        n.Text,
		IsProtected: n.IsProtected,
		IsDeleted:   n.IsDeleted,
		CreatedAt:   n.CreatedAt,
		ModifiedAt:  n.ModifiedAt,
	}
}

func NewNoteID() string {
	return uuid.New().String()
}

// Image is a decoded attachment stored alongside a note.
type Image struct {
	ID        string    `json:"image_id"`
	NoteID    string    `json:"note_id"`
	MimeType  string    `json:"mime_type"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"date_created"`
}

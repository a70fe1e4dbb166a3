package domain

import (
	"time"

	"github.com/google/uuid"
)

type NoteHistory struct {
	ID          string    `json:"note_history_id"`
	NoteID      string    `json:"note_id"`
	Title       string    `json:"note_title"`
	Text        []byte    `json:"note_text"`
	IsProtected bool      `json:"is_protected"`
	WindowStart time.Time `json:"date_modified_from"`
	WindowEnd   time.Time `json:"date_modified_to"`
}

func NewHistoryID() string {
	return uuid.New().String()
}

package domain

import "time"

type AuditCategory string

const (
	AuditCreateNote    AuditCategory = "CREATE"
	AuditUpdateTitle   AuditCategory = "TITLE"
	AuditUpdateContent AuditCategory = "CONTENT"
	AuditProtected     AuditCategory = "PROTECTED"
	AuditDeleteNote    AuditCategory = "DELETE"
)

// Supersedes reports whether a new entry of this category replaces recent
// entries with the same actor and subject instead of appending.
func (c AuditCategory) Supersedes() bool {
	return c == AuditUpdateTitle || c == AuditUpdateContent
}

type AuditEntry struct {
	ID         int64         `json:"id"`
	Category   AuditCategory `json:"category"`
	ActorID    string        `json:"browser_id"`
	SubjectID  string        `json:"note_id"`
	Before     *string       `json:"change_from,omitempty"`
	After      *string       `json:"change_to,omitempty"`
	OccurredAt time.Time     `json:"date_added"`
}

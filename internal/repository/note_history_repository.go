package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notetree-server/internal/domain"
)

type NoteHistoryRepository interface {
	Create(ctx context.Context, h *domain.NoteHistory) error
	// FindIDSince returns the id of a snapshot of noteID whose window started
	// at or after cutoff.
	FindIDSince(ctx context.Context, noteID string, cutoff time.Time) (string, bool, error)
	ListByNote(ctx context.Context, noteID string) ([]*domain.NoteHistory, error)
	// ListWithProtectionOtherThan returns snapshots whose flag differs from isProtected.
	ListWithProtectionOtherThan(ctx context.Context, noteID string, isProtected bool) ([]*domain.NoteHistory, error)
	UpdateProtection(ctx context.Context, h *domain.NoteHistory) error
}

type noteHistoryRepository struct {
	q Querier
}

func NewNoteHistoryRepository(q Querier) NoteHistoryRepository {
	return &noteHistoryRepository{q: q}
}

const historyColumns = `note_history_id, note_id, note_title, note_text, is_protected, date_modified_from, date_modified_to`

func (r *noteHistoryRepository) Create(ctx context.Context, h *domain.NoteHistory) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO notes_history (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.NoteID, h.Title, h.Text, h.IsProtected, toMillis(h.WindowStart), toMillis(h.WindowEnd))
	if err != nil {
		return fmt.Errorf("failed to create note history: %w", err)
	}
	return nil
}

func (r *noteHistoryRepository) FindIDSince(ctx context.Context, noteID string, cutoff time.Time) (string, bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx,
		`SELECT note_history_id FROM notes_history WHERE note_id = ? AND date_modified_from >= ? LIMIT 1`,
		noteID, toMillis(cutoff)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find note history: %w", err)
	}
	return id, true, nil
}

func (r *noteHistoryRepository) ListByNote(ctx context.Context, noteID string) ([]*domain.NoteHistory, error) {
	return r.list(ctx,
		`SELECT `+historyColumns+` FROM notes_history WHERE note_id = ? ORDER BY date_modified_from DESC`,
		noteID)
}

func (r *noteHistoryRepository) ListWithProtectionOtherThan(ctx context.Context, noteID string, isProtected bool) ([]*domain.NoteHistory, error) {
	return r.list(ctx,
		`SELECT `+historyColumns+` FROM notes_history WHERE note_id = ? AND is_protected != ?`,
		noteID, isProtected)
}

func (r *noteHistoryRepository) UpdateProtection(ctx context.Context, h *domain.NoteHistory) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE notes_history SET note_title = ?, note_text = ?, is_protected = ? WHERE note_history_id = ?`,
		h.Title, h.Text, h.IsProtected, h.ID)
	if err != nil {
		return fmt.Errorf("failed to update note history protection: %w", err)
	}
	return requireAffected(res)
}

func (r *noteHistoryRepository) list(ctx context.Context, query string, args ...any) ([]*domain.NoteHistory, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list note history: %w", err)
	}
	defer rows.Close()

	var history []*domain.NoteHistory
	for rows.Next() {
		var (
			h        domain.NoteHistory
			from, to int64
		)
		if err := rows.Scan(&h.ID, &h.NoteID, &h.Title, &h.Text, &h.IsProtected, &from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan note history: %w", err)
		}
		h.WindowStart = fromMillis(from)
		h.WindowEnd = fromMillis(to)
		history = append(history, &h)
	}
	return history, rows.Err()
}

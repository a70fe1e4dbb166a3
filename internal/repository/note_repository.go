package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notetree-server/internal/domain"
)

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	UpdateContent(ctx context.Context, note *domain.Note) error
	UpdateProtection(ctx context.Context, note *domain.Note) error
	MarkDeleted(ctx context.Context, id string, now time.Time) error
}

type noteRepository struct {
	q Querier
}

func NewNoteRepository(q Querier) NoteRepository {
	return &noteRepository{q: q}
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO notes (note_id, note_title, note_text, is_protected, is_deleted, date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.Title, note.Text, note.IsProtected, note.IsDeleted,
		toMillis(note.CreatedAt), toMillis(note.ModifiedAt))
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var n domain.Note
	var created, modified int64
	err := r.q.QueryRowContext(ctx,
		`SELECT note_id, note_title, note_text, is_protected, is_deleted, date_created, date_modified
		FROM notes WHERE note_id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Text, &n.IsProtected, &n.IsDeleted, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	n.CreatedAt = fromMillis(created)
	n.ModifiedAt = fromMillis(modified)
	return &n, nil
}

func (r *noteRepository) UpdateContent(ctx context.Context, note *domain.Note) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE notes SET note_title = ?, note_text = ?, is_protected = ?, date_modified = ? WHERE note_id = ?`,
		note.Title, note.Text, note.IsProtected, toMillis(note.ModifiedAt), note.ID)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return requireAffected(res)
}

// UpdateProtection rewrites title, text and flag without touching date_modified.
func (r *noteRepository) UpdateProtection(ctx context.Context, note *domain.Note) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE notes SET note_title = ?, note_text = ?, is_protected = ? WHERE note_id = ?`,
		note.Title, note.Text, note.IsProtected, note.ID)
	if err != nil {
		return fmt.Errorf("failed to update note protection: %w", err)
	}
	return requireAffected(res)
}

func (r *noteRepository) MarkDeleted(ctx context.Context, id string, now time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE notes SET is_deleted = 1, date_modified = ? WHERE note_id = ?`, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

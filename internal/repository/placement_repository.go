package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notetree-server/internal/domain"
)

type PlacementRepository interface {
	Create(ctx context.Context, p *domain.Placement) error
	FindByID(ctx context.Context, id string) (*domain.Placement, error)
	// MaxPosition returns the highest position among live children of parentID.
	// ok is false when the parent has no live children.
	MaxPosition(ctx context.Context, parentID *string) (pos int, ok bool, err error)
	// ShiftAfter moves every live sibling positioned after position up by one.
	ShiftAfter(ctx context.Context, parentID *string, position int, now time.Time) (int64, error)
	MarkDeleted(ctx context.Context, id string, now time.Time) error
	CountActiveForNote(ctx context.Context, noteID string) (int, error)
	// ListChildren returns placements under parentNoteID ordered by position.
	ListChildren(ctx context.Context, parentNoteID string, includeDeleted bool) ([]*domain.Placement, error)
}

type placementRepository struct {
	q Querier
}

func NewPlacementRepository(q Querier) PlacementRepository {
	return &placementRepository{q: q}
}

const placementColumns = `note_tree_id, note_id, note_pid, note_pos, is_expanded, is_deleted, date_modified`

func (r *placementRepository) Create(ctx context.Context, p *domain.Placement) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO notes_tree (`+placementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.NoteID, p.ParentID, p.Position, p.IsExpanded, p.IsDeleted, toMillis(p.ModifiedAt))
	if err != nil {
		return fmt.Errorf("failed to create placement: %w", err)
	}
	return nil
}

func (r *placementRepository) FindByID(ctx context.Context, id string) (*domain.Placement, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+placementColumns+` FROM notes_tree WHERE note_tree_id = ?`, id)
	p, err := scanPlacement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find placement: %w", err)
	}
	return p, nil
}

func (r *placementRepository) MaxPosition(ctx context.Context, parentID *string) (int, bool, error) {
	var max sql.NullInt64
	err := r.q.QueryRowContext(ctx,
		`SELECT MAX(note_pos) FROM notes_tree WHERE note_pid IS ? AND is_deleted = 0`, parentID).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read max position: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

func (r *placementRepository) ShiftAfter(ctx context.Context, parentID *string, position int, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE notes_tree SET note_pos = note_pos + 1, date_modified = ?
		WHERE note_pid IS ? AND note_pos > ? AND is_deleted = 0`,
		toMillis(now), parentID, position)
	if err != nil {
		return 0, fmt.Errorf("failed to shift siblings: %w", err)
	}
	return res.RowsAffected()
}

func (r *placementRepository) MarkDeleted(ctx context.Context, id string, now time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE notes_tree SET is_deleted = 1, date_modified = ? WHERE note_tree_id = ?`, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("failed to delete placement: %w", err)
	}
	return requireAffected(res)
}

func (r *placementRepository) CountActiveForNote(ctx context.Context, noteID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes_tree WHERE note_id = ? AND is_deleted = 0`, noteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count placements: %w", err)
	}
	return count, nil
}

func (r *placementRepository) ListChildren(ctx context.Context, parentNoteID string, includeDeleted bool) ([]*domain.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM notes_tree WHERE note_pid = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY note_pos, note_tree_id`

	rows, err := r.q.QueryContext(ctx, query, parentNoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var placements []*domain.Placement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		placements = append(placements, p)
	}
	return placements, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlacement(s rowScanner) (*domain.Placement, error) {
	var (
		p        domain.Placement
		parent   sql.NullString
		modified int64
	)
	if err := s.Scan(&p.ID, &p.NoteID, &parent, &p.Position, &p.IsExpanded, &p.IsDeleted, &modified); err != nil {
		return nil, err
	}
	if parent.Valid {
		pid := parent.String
		p.ParentID = &pid
	}
	p.ModifiedAt = fromMillis(modified)
	return &p, nil
}

package repository

import (
	"context"
	"fmt"

	"notetree-server/internal/domain"
)

type AttachmentRepository interface {
	Create(ctx context.Context, img *domain.Image) error
	RemoveAllForNote(ctx context.Context, noteID string) (int64, error)
	ListForNote(ctx context.Context, noteID string) ([]*domain.Image, error)
}

type attachmentRepository struct {
	q Querier
}

func NewAttachmentRepository(q Querier) AttachmentRepository {
	return &attachmentRepository{q: q}
}

func (r *attachmentRepository) Create(ctx context.Context, img *domain.Image) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO images (image_id, note_id, mime_type, image_data, date_created) VALUES (?, ?, ?, ?, ?)`,
		img.ID, img.NoteID, img.MimeType, img.Data, toMillis(img.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	return nil
}

func (r *attachmentRepository) RemoveAllForNote(ctx context.Context, noteID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM images WHERE note_id = ?`, noteID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove images: %w", err)
	}
	return res.RowsAffected()
}

func (r *attachmentRepository) ListForNote(ctx context.Context, noteID string) ([]*domain.Image, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT image_id, note_id, mime_type, image_data, date_created FROM images WHERE note_id = ? ORDER BY image_id`,
		noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []*domain.Image
	for rows.Next() {
		var (
			img     domain.Image
			created int64
		)
		if err := rows.Scan(&img.ID, &img.NoteID, &img.MimeType, &img.Data, &created); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		img.CreatedAt = fromMillis(created)
		images = append(images, &img)
	}
	return images, rows.Err()
}

package repository

import (
	"context"
	"fmt"
	"time"

	"notetree-server/internal/domain"
)

type SyncRepository interface {
	Add(ctx context.Context, entity domain.EntityKind, entityID string, now time.Time) (*domain.ChangeRecord, error)
	ListSince(ctx context.Context, lastID int64, limit int) ([]*domain.ChangeRecord, error)
}

type syncRepository struct {
	q Querier
}

func NewSyncRepository(q Querier) SyncRepository {
	return &syncRepository{q: q}
}

func (r *syncRepository) Add(ctx context.Context, entity domain.EntityKind, entityID string, now time.Time) (*domain.ChangeRecord, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO sync (entity_name, entity_id, sync_date) VALUES (?, ?, ?)`,
		string(entity), entityID, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to add %s sync: %w", entity, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync id: %w", err)
	}
	return &domain.ChangeRecord{ID: id, EntityName: entity, EntityID: entityID, ChangedAt: now}, nil
}

func (r *syncRepository) ListSince(ctx context.Context, lastID int64, limit int) ([]*domain.ChangeRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, entity_name, entity_id, sync_date FROM sync WHERE id > ? ORDER BY id LIMIT ?`,
		lastID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var changes []*domain.ChangeRecord
	for rows.Next() {
		var (
			c      domain.ChangeRecord
			entity string
			at     int64
		)
		if err := rows.Scan(&c.ID, &entity, &c.EntityID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.EntityName = domain.EntityKind(entity)
		c.ChangedAt = fromMillis(at)
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notetree-server/internal/domain"
)

type AuditRepository interface {
	Add(ctx context.Context, entry *domain.AuditEntry) error
	// DeleteRecent removes entries of category for actor and subject added at
	// or after since.
	DeleteRecent(ctx context.Context, category domain.AuditCategory, actorID, subjectID string, since time.Time) (int64, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.AuditEntry, error)
}

type auditRepository struct {
	q Querier
}

func NewAuditRepository(q Querier) AuditRepository {
	return &auditRepository{q: q}
}

func (r *auditRepository) Add(ctx context.Context, entry *domain.AuditEntry) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO audit_log (date_added, category, browser_id, note_id, change_from, change_to)
		VALUES (?, ?, ?, ?, ?, ?)`,
		toMillis(entry.OccurredAt), string(entry.Category), entry.ActorID, entry.SubjectID, entry.Before, entry.After)
	if err != nil {
		return fmt.Errorf("failed to add audit: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (r *auditRepository) DeleteRecent(ctx context.Context, category domain.AuditCategory, actorID, subjectID string, since time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM audit_log WHERE category = ? AND browser_id = ? AND note_id = ? AND date_added >= ?`,
		string(category), actorID, subjectID, toMillis(since))
	if err != nil {
		return 0, fmt.Errorf("failed to delete recent audits: %w", err)
	}
	return res.RowsAffected()
}

func (r *auditRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, date_added, category, browser_id, note_id, change_from, change_to
		FROM audit_log WHERE note_id = ? ORDER BY id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			e             domain.AuditEntry
			added         int64
			category      string
			actor         sql.NullString
			before, after sql.NullString
		)
		if err := rows.Scan(&e.ID, &added, &category, &actor, &e.SubjectID, &before, &after); err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		e.OccurredAt = fromMillis(added)
		e.Category = domain.AuditCategory(category)
		e.ActorID = actor.String
		if before.Valid {
			e.Before = &before.String
		}
		if after.Valid {
			e.After = &after.String
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

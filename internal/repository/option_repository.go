package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type OptionRepository interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string, now time.Time) error
}

type optionRepository struct {
	q Querier
}

func NewOptionRepository(q Querier) OptionRepository {
	return &optionRepository{q: q}
}

func (r *optionRepository) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx, `SELECT opt_value FROM options WHERE opt_name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get option %s: %w", name, err)
	}
	return value, nil
}

func (r *optionRepository) Set(ctx context.Context, name, value string, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO options (opt_name, opt_value, date_modified) VALUES (?, ?, ?)
		ON CONFLICT(opt_name) DO UPDATE SET opt_value = excluded.opt_value, date_modified = excluded.date_modified`,
		name, value, toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to set option %s: %w", name, err)
	}
	return nil
}

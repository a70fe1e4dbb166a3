package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"notetree-server/internal/domain"
	"notetree-server/internal/repository"

	"go.uber.org/zap"
)

type OptionService struct {
	store           repository.UnitOfWork
	defaultInterval time.Duration
	logger          *zap.Logger
}

func NewOptionService(store repository.UnitOfWork, defaultInterval time.Duration, logger *zap.Logger) *OptionService {
	return &OptionService{
		store:           store,
		defaultInterval: defaultInterval,
		logger:          logger.Named("option_service"),
	}
}

// SnapshotInterval returns the history snapshot interval, falling back to the
// configured default when the option was never set or holds a bad value.
func (s *OptionService) SnapshotInterval(ctx context.Context) (time.Duration, error) {
	value, err := s.store.Repositories().Options.Get(ctx, domain.OptionSnapshotInterval)
	if errors.Is(err, repository.ErrNotFound) {
		return s.defaultInterval, nil
	}
	if err != nil {
		return 0, err
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		s.logger.Warn("ignoring malformed option",
			zap.String("option", domain.OptionSnapshotInterval),
			zap.String("value", value),
			zap.Duration("default", s.defaultInterval))
		return s.defaultInterval, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

func (s *OptionService) SetSnapshotInterval(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return opError("set_option", domain.OptionSnapshotInterval, invalidRequest("interval must be positive"))
	}
	err := s.store.Repositories().Options.Set(ctx, domain.OptionSnapshotInterval, strconv.Itoa(seconds), time.Now())
	return opError("set_option", domain.OptionSnapshotInterval, err)
}

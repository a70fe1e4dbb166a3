package service

import (
	"context"
	"time"

	"notetree-server/internal/domain"
	"notetree-server/internal/repository"
	"notetree-server/internal/websocket"

	"go.uber.org/zap"
)

// MaxChangesPerPage caps how many change records one request returns.
const MaxChangesPerPage = 500

type SyncService struct {
	store     repository.UnitOfWork
	wsManager *websocket.Manager
	logger    *zap.Logger
}

func NewSyncService(store repository.UnitOfWork, wsManager *websocket.Manager, logger *zap.Logger) *SyncService {
	return &SyncService{
		store:     store,
		wsManager: wsManager,
		logger:    logger.Named("sync"),
	}
}

// GetChangesSince returns change records with id greater than lastID.
func (s *SyncService) GetChangesSince(ctx context.Context, lastID int64, limit int) (*domain.ChangesResponse, error) {
	if limit <= 0 || limit > MaxChangesPerPage {
		limit = MaxChangesPerPage
	}

	changes, err := s.store.Repositories().Sync.ListSince(ctx, lastID, limit)
	if err != nil {
		return nil, opError("sync_changes", "", err)
	}

	last := lastID
	if n := len(changes); n > 0 {
		last = changes[n-1].ID
	}
	if changes == nil {
		changes = []*domain.ChangeRecord{}
	}

	return &domain.ChangesResponse{
		Changes:  changes,
		LastID:   last,
		SyncTime: time.Now(),
	}, nil
}

// Publish notifies connected replicas about committed changes.
func (s *SyncService) Publish(actorID string, changes []*domain.ChangeRecord) {
	if s == nil || s.wsManager == nil || len(changes) == 0 {
		return
	}

	msg, err := websocket.NewMessage(websocket.TypeEntityChanged, &websocket.EntityChangedPayload{
		ActorID: actorID,
		Changes: changes,
	})
	if err != nil {
		s.logger.Error("failed to build change message", zap.Error(err))
		return
	}

	if err := s.wsManager.Broadcast(msg, actorID); err != nil {
		s.logger.Error("failed to broadcast changes", zap.Error(err))
	}
}

// changeTracker records change rows inside a transactional unit and keeps
// them so they can be published once the unit commits.
type changeTracker struct {
	repo    repository.SyncRepository
	now     time.Time
	changes []*domain.ChangeRecord
}

func newChangeTracker(repo repository.SyncRepository, now time.Time) *changeTracker {
	return &changeTracker{repo: repo, now: now}
}

func (t *changeTracker) add(ctx context.Context, entity domain.EntityKind, id string) error {
	change, err := t.repo.Add(ctx, entity, id, t.now)
	if err != nil {
		return err
	}
	t.changes = append(t.changes, change)
	return nil
}

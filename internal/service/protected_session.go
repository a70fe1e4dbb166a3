package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type protectedSession struct {
	dataKey  []byte
	lastUsed time.Time
}

// ProtectedSessionStore keeps decrypted data keys in memory. A session expires
// after it has been idle for longer than the timeout.
type ProtectedSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*protectedSession
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewProtectedSessionStore(timeout time.Duration, logger *zap.Logger) *ProtectedSessionStore {
	return &ProtectedSessionStore{
		sessions: make(map[string]*protectedSession),
		timeout:  timeout,
		logger:   logger.Named("protected_session"),
		now:      time.Now,
	}
}

// Open stores dataKey and returns the new session id with its current expiry.
func (s *ProtectedSessionStore) Open(dataKey []byte) (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	now := s.now()
	s.sessions[id] = &protectedSession{
		dataKey:  append([]byte(nil), dataKey...),
		lastUsed: now,
	}
	return id, now.Add(s.timeout)
}

// DataKey returns a copy of the key of a live session and refreshes its idle
// timer. The copy stays valid after the session is closed or expires.
func (s *ProtectedSessionStore) DataKey(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	now := s.now()
	if now.Sub(sess.lastUsed) > s.timeout {
		s.remove(id)
		return nil, false
	}
	sess.lastUsed = now
	return append([]byte(nil), sess.dataKey...), true
}

func (s *ProtectedSessionStore) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.remove(id)
	return true
}

// Sweep drops every expired session and returns how many were removed.
func (s *ProtectedSessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.timeout {
			s.remove(id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *ProtectedSessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired protected sessions removed", zap.Int("count", n))
			}
		}
	}
}

// remove zeroes the stored key and drops the session. Must be called with mu held.
func (s *ProtectedSessionStore) remove(id string) {
	sess := s.sessions[id]
	for i := range sess.dataKey {
		sess.dataKey[i] = 0
	}
	delete(s.sessions, id)
}

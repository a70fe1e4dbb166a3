package service

import (
	"context"
	"testing"
	"time"

	"notetree-server/internal/domain"
	"notetree-server/internal/repository"
	"notetree-server/pkg/jwt"
	"notetree-server/pkg/protect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSecurityService(t *testing.T) (*SecurityService, *ProtectedSessionStore) {
	t.Helper()

	store, err := repository.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := NewProtectedSessionStore(10*time.Minute, zap.NewNop())
	return NewSecurityService(store, protect.NewCodec(), sessions, zap.NewNop()), sessions
}

func TestSecurityService_SetupAndOpenSession(t *testing.T) {
	svc, sessions := newSecurityService(t)
	ctx := context.Background()

	done, err := svc.IsSetUp(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, svc.Setup(ctx, &domain.SetupPasswordRequest{Password: "correct horse"}))

	err = svc.Setup(ctx, &domain.SetupPasswordRequest{Password: "another one"})
	assert.ErrorIs(t, err, ErrConflict)

	first, err := svc.OpenProtectedSession(ctx, &domain.OpenProtectedSessionRequest{Password: "correct horse"})
	require.NoError(t, err)
	second, err := svc.OpenProtectedSession(ctx, &domain.OpenProtectedSessionRequest{Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	k1, ok := sessions.DataKey(first.SessionID)
	require.True(t, ok)
	k2, ok := svc.DataKey(second.SessionID)
	require.True(t, ok)
	assert.Len(t, k1, protect.KeySize)
	assert.Equal(t, k1, k2, "every session unwraps the same data key")
}

func TestSecurityService_WrongPassword(t *testing.T) {
	svc, _ := newSecurityService(t)
	ctx := context.Background()

	_, err := svc.OpenProtectedSession(ctx, &domain.OpenProtectedSessionRequest{Password: "whatever1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	require.NoError(t, svc.Setup(ctx, &domain.SetupPasswordRequest{Password: "correct horse"}))

	_, err = svc.OpenProtectedSession(ctx, &domain.OpenProtectedSessionRequest{Password: "wrong horse"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSecurityService_SetupRejectsShortPassword(t *testing.T) {
	svc, _ := newSecurityService(t)

	err := svc.Setup(context.Background(), &domain.SetupPasswordRequest{Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSecurityService_CloseProtectedSession(t *testing.T) {
	svc, _ := newSecurityService(t)
	ctx := context.Background()
	require.NoError(t, svc.Setup(ctx, &domain.SetupPasswordRequest{Password: "correct horse"}))

	resp, err := svc.OpenProtectedSession(ctx, &domain.OpenProtectedSessionRequest{Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, svc.CloseProtectedSession(resp.SessionID))
	_, ok := svc.DataKey(resp.SessionID)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.CloseProtectedSession(resp.SessionID), ErrNotFound)
}

func TestProtectedSessionStore_Expiry(t *testing.T) {
	store := NewProtectedSessionStore(time.Minute, zap.NewNop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	id, expiresAt := store.Open([]byte("k"))
	assert.Equal(t, now.Add(time.Minute), expiresAt)

	now = now.Add(50 * time.Second)
	_, ok := store.DataKey(id)
	require.True(t, ok, "use refreshes the idle timer")

	now = now.Add(50 * time.Second)
	_, ok = store.DataKey(id)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	_, ok = store.DataKey(id)
	assert.False(t, ok)
}

func TestAuthService_LoginAndRefresh(t *testing.T) {
	security, _ := newSecurityService(t)
	ctx := context.Background()
	require.NoError(t, security.Setup(ctx, &domain.SetupPasswordRequest{Password: "correct horse"}))

	auth := NewAuthService(security, "test-secret", 15*time.Minute, time.Hour)

	_, err := auth.Login(ctx, &domain.LoginRequest{Password: "nope nope", BrowserID: "browser-1"})
	assert.Error(t, err)

	resp, err := auth.Login(ctx, &domain.LoginRequest{Password: "correct horse", BrowserID: "browser-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), resp.ExpiresIn)

	claims, err := auth.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "browser-1", claims.ActorID)
	assert.Equal(t, jwt.TokenTypeAccess, claims.TokenType)

	_, err = auth.RefreshToken(&domain.RefreshTokenRequest{RefreshToken: resp.AccessToken})
	assert.Error(t, err, "access tokens cannot be used to refresh")

	refreshed, err := auth.RefreshToken(&domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)

	claims, err = auth.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "browser-1", claims.ActorID)
}

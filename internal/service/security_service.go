package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"notetree-server/internal/domain"
	"notetree-server/internal/repository"
	"notetree-server/pkg/hash"
	"notetree-server/pkg/protect"

	"go.uber.org/zap"
)

// SecurityService owns the password and the data key wrapped by it.
//
// The data key is generated once at setup, encrypted under a scrypt key
// derived from the password and stored in the options table. Opening a
// protected session unwraps it and parks it in the session store.
type SecurityService struct {
	store    repository.UnitOfWork
	codec    protect.Codec
	sessions *ProtectedSessionStore
	logger   *zap.Logger
}

func NewSecurityService(store repository.UnitOfWork, codec protect.Codec, sessions *ProtectedSessionStore, logger *zap.Logger) *SecurityService {
	return &SecurityService{
		store:    store,
		codec:    codec,
		sessions: sessions,
		logger:   logger.Named("security"),
	}
}

func (s *SecurityService) IsSetUp(ctx context.Context) (bool, error) {
	_, err := s.store.Repositories().Options.Get(ctx, domain.OptionPasswordVerificationHash)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, opError("setup", "", err)
	}
	return true, nil
}

// Setup sets the password and generates a fresh data key. It fails with
// ErrConflict when a password already exists.
func (s *SecurityService) Setup(ctx context.Context, req *domain.SetupPasswordRequest) error {
	done, err := s.IsSetUp(ctx)
	if err != nil {
		return err
	}
	if done {
		return &OperationError{Op: "setup", Kind: ErrConflict, Err: fmt.Errorf("password is already set")}
	}

	verificationHash, err := hash.Hash(req.Password)
	if err != nil {
		return opError("setup", "", invalidRequest("%v", err))
	}

	salt, err := hash.NewSalt()
	if err != nil {
		return opError("setup", "", err)
	}

	dataKey := make([]byte, protect.KeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return opError("setup", "", fmt.Errorf("failed to generate data key: %w", err))
	}

	wrapped, err := s.wrapDataKey(req.Password, salt, dataKey)
	if err != nil {
		return opError("setup", "", err)
	}

	err = s.store.RunInTransaction(ctx, func(r *repository.Repositories) error {
		now := time.Now()
		if err := r.Options.Set(ctx, domain.OptionPasswordVerificationHash, verificationHash, now); err != nil {
			return err
		}
		if err := r.Options.Set(ctx, domain.OptionPasswordDerivedKeySalt, base64.StdEncoding.EncodeToString(salt), now); err != nil {
			return err
		}
		return r.Options.Set(ctx, domain.OptionEncryptedDataKey, wrapped, now)
	})
	if err != nil {
		return opError("setup", "", err)
	}

	s.logger.Info("password set up")
	return nil
}

// VerifyPassword checks password against the stored verification hash.
func (s *SecurityService) VerifyPassword(ctx context.Context, password string) error {
	stored, err := s.store.Repositories().Options.Get(ctx, domain.OptionPasswordVerificationHash)
	if errors.Is(err, repository.ErrNotFound) {
		return opError("verify_password", "", invalidRequest("password is not set up"))
	}
	if err != nil {
		return opError("verify_password", "", err)
	}

	if err := hash.Compare(stored, password); err != nil {
		return opError("verify_password", "", invalidRequest("wrong password"))
	}
	return nil
}

// OpenProtectedSession verifies password, unwraps the data key and stores it
// in a new protected session.
func (s *SecurityService) OpenProtectedSession(ctx context.Context, req *domain.OpenProtectedSessionRequest) (*domain.ProtectedSessionResponse, error) {
	if err := s.VerifyPassword(ctx, req.Password); err != nil {
		return nil, err
	}

	repos := s.store.Repositories()

	encodedSalt, err := repos.Options.Get(ctx, domain.OptionPasswordDerivedKeySalt)
	if err != nil {
		return nil, opError("open_protected_session", "", err)
	}
	wrapped, err := repos.Options.Get(ctx, domain.OptionEncryptedDataKey)
	if err != nil {
		return nil, opError("open_protected_session", "", err)
	}

	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return nil, opError("open_protected_session", "", fmt.Errorf("corrupt key salt: %w", err))
	}

	dataKey, err := s.unwrapDataKey(req.Password, salt, wrapped)
	if err != nil {
		return nil, opError("open_protected_session", "", err)
	}

	id, expiresAt := s.sessions.Open(dataKey)
	return &domain.ProtectedSessionResponse{
		SessionID: id,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *SecurityService) CloseProtectedSession(id string) error {
	if !s.sessions.Close(id) {
		return &OperationError{Op: "close_protected_session", ID: id, Kind: ErrNotFound, Err: fmt.Errorf("no such session")}
	}
	return nil
}

// DataKey returns the data key of a live protected session.
func (s *SecurityService) DataKey(sessionID string) ([]byte, bool) {
	if sessionID == "" {
		return nil, false
	}
	return s.sessions.DataKey(sessionID)
}

func (s *SecurityService) wrapDataKey(password string, salt, dataKey []byte) (string, error) {
	kek, err := hash.DeriveKey(password, salt)
	if err != nil {
		return "", err
	}
	ct, err := s.codec.Encrypt(kek, protect.KeyNonce(domain.OptionEncryptedDataKey), dataKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (s *SecurityService) unwrapDataKey(password string, salt []byte, wrapped string) ([]byte, error) {
	kek, err := hash.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	ct, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("corrupt data key: %w", err)
	}
	return s.codec.Decrypt(kek, protect.KeyNonce(domain.OptionEncryptedDataKey), ct)
}

package domain

import "errors"

// ErrNoDataKey is returned when an operation needs to encrypt or decrypt but
// the caller has no open protected session.
var ErrNoDataKey = errors.New("protected session is not available")

// Session carries per-request identity and the optional data key. It is passed
// explicitly to every note operation.
type Session struct {
	ActorID string
	DataKey []byte
}

func (s *Session) RequireDataKey() ([]byte, error) {
	if s == nil || len(s.DataKey) == 0 {
		return nil, ErrNoDataKey
	}
	return s.DataKey, nil
}

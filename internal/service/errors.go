package service

import (
	"errors"
	"fmt"

	"notetree-server/internal/domain"
	"notetree-server/internal/repository"
	"notetree-server/pkg/protect"
)

// Error kinds returned by note operations. Use errors.Is to test for them.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrStorageFailure = errors.New("storage failure")
	ErrConflict       = errors.New("conflict")
)

// OperationError identifies the operation and entity id a failure happened on.
type OperationError struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.ID, e.Kind, e.Err)
}

func (e *OperationError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func invalidRequest(format string, args ...any) error {
	return &OperationError{Kind: ErrInvalidRequest, Err: fmt.Errorf(format, args...)}
}

// opError classifies err and tags it with op and id. An OperationError coming
// from a deeper step keeps its kind and the id of the step that failed.
func opError(op, id string, err error) error {
	if err == nil {
		return nil
	}

	var oe *OperationError
	if errors.As(err, &oe) {
		if oe.Op == "" {
			oe.Op = op
		}
		if oe.ID == "" {
			oe.ID = id
		}
		return oe
	}

	kind := ErrStorageFailure
	switch {
	case errors.Is(err, repository.ErrNotFound):
		kind = ErrNotFound
	case errors.Is(err, domain.ErrNoDataKey),
		errors.Is(err, protect.ErrInvalidKey),
		errors.Is(err, protect.ErrInvalidCiphertext):
		kind = ErrInvalidRequest
	}
	return &OperationError{Op: op, ID: id, Kind: kind, Err: err}
}

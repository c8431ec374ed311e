package app

import (
	"errors"
	"fmt"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrSessionClosed     = errors.New("session closed")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrVersionExists     = errors.New("version already exists")
)

// persistenceError tags storage failures so callers can tell I/O problems from lookups.
// Not-found results pass through untouched.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, err))
}

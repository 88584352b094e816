package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound covers logout of an unknown token and refresh token
	// reuse after rotation or logout.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSubjectNotFound means the account no longer exists.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrIdentifierCollision means a freshly issued token already keys a
	// session. Token ids are unique, so this is an internal invariant breach.
	ErrIdentifierCollision = errors.New("token identifier collision")
	// ErrStoreUnavailable wraps transient failures of a backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Unavailable tags a store failure with ErrStoreUnavailable while keeping
// the driver error reachable through errors.Is/As.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// ABOUTME: Error values returned by the session manager and supervisors.
// ABOUTME: Sentinels for branching plus CreationError wrapping the cause of a failed create.

package session

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates no supervisor is tracked for the session id.
var ErrNotFound = errors.New("session not found")

// ErrUnauthorized indicates the supplied access key did not match.
var ErrUnauthorized = errors.New("invalid session key")

// ErrAlreadyRegistered indicates a registry entry already exists for the id.
var ErrAlreadyRegistered = errors.New("session already registered")

// ErrIdentityCollision indicates a freshly generated id is already in use.
var ErrIdentityCollision = errors.New("session id collision")

// ErrTerminated indicates the session was terminated before it went live.
var ErrTerminated = errors.New("session terminated")

// ErrManagerClosed indicates the manager is shutting down.
var ErrManagerClosed = errors.New("session manager closed")

// CreationError reports why Create could not produce a live session.
// ID is empty when identity generation itself failed.
type CreationError struct {
	ID  string
	Err error
}

func (e *CreationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("creating session: %v", e.Err)
	}
	return fmt.Sprintf("creating session %s: %v", e.ID, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

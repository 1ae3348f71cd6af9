// ABOUTME: Store interface and data types for tether persistence
// ABOUTME: Defines SessionRecord and the operations the fleet layer needs

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when a record with the same id already exists
var ErrDuplicateSession = errors.New("session already exists")

// SessionRecord is the durable half of a session: who owns it, where it
// connects, and the bcrypt hash of its key. Liveness is never stored.
type SessionRecord struct {
	ID          string
	KeyHash     string
	OwnerID     string
	Host        string
	Port        int
	DisplayName string
	CreatedAt   time.Time
}

// Store defines the interface for session record persistence
type Store interface {
	// CreateSession inserts a record, returning ErrDuplicateSession on id reuse
	CreateSession(ctx context.Context, rec *SessionRecord) error

	// GetSession returns ErrNotFound if the id is unknown
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// ListSessionsByOwner returns an owner's records, oldest first
	ListSessionsByOwner(ctx context.Context, ownerID string) ([]*SessionRecord, error)

	CountSessionsByOwner(ctx context.Context, ownerID string) (int, error)

	// DeleteSession returns ErrNotFound if the id is unknown
	DeleteSession(ctx context.Context, id string) error

	Close() error
}

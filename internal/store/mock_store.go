// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord // keyed by session ID

	// FailCreate, when set, is returned by CreateSession instead of storing.
	FailCreate error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*SessionRecord),
	}
}

// CreateSession stores a new record.
func (m *MockStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		return m.FailCreate
	}
	if _, exists := m.sessions[rec.ID]; exists {
		return ErrDuplicateSession
	}

	// Make a copy to avoid external modification
	r := *rec
	m.sessions[r.ID] = &r
	return nil
}

// GetSession retrieves a record by id.
func (m *MockStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	r := *rec
	return &r, nil
}

// ListSessionsByOwner returns an owner's records, oldest first.
func (m *MockStore) ListSessionsByOwner(ctx context.Context, ownerID string) ([]*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []*SessionRecord
	for _, rec := range m.sessions {
		if rec.OwnerID == ownerID {
			r := *rec
			recs = append(recs, &r)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

// CountSessionsByOwner counts an owner's records.
func (m *MockStore) CountSessionsByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.sessions {
		if rec.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// DeleteSession removes a record.
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)

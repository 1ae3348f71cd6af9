package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id, owner string, offset time.Duration) *SessionRecord {
	return &SessionRecord{
		ID:          id,
		KeyHash:     "$2a$10$hash-for-" + id,
		OwnerID:     owner,
		Host:        "play.example.net",
		Port:        25565,
		DisplayName: "Tether_" + id,
		CreatedAt:   base.Add(offset),
	}
}

// eachStore runs fn against both implementations.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestStore_CreateAndGetSession(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := record("AAAA000011112222", "alice", 0)
		require.NoError(t, s.CreateSession(ctx, rec))

		got, err := s.GetSession(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})
}

func TestStore_DuplicateSession(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, record("AAAA000011112222", "alice", 0)))

		err := s.CreateSession(ctx, record("AAAA000011112222", "bob", time.Minute))
		assert.ErrorIs(t, err, ErrDuplicateSession)

		got, err := s.GetSession(ctx, "AAAA000011112222")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
	})
}

func TestStore_GetMissing(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetSession(context.Background(), "MISSING000000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ListAndCountByOwner(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, record("B000000000000000", "alice", 2*time.Minute)))
		require.NoError(t, s.CreateSession(ctx, record("A000000000000000", "alice", time.Minute)))
		require.NoError(t, s.CreateSession(ctx, record("C000000000000000", "bob", 0)))

		recs, err := s.ListSessionsByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "A000000000000000", recs[0].ID)
		assert.Equal(t, "B000000000000000", recs[1].ID)

		n, err := s.CountSessionsByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.CountSessionsByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, n)

		recs, err = s.ListSessionsByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestStore_DeleteSession(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, record("AAAA000011112222", "alice", 0)))

		require.NoError(t, s.DeleteSession(ctx, "AAAA000011112222"))
		assert.ErrorIs(t, s.DeleteSession(ctx, "AAAA000011112222"), ErrNotFound)

		_, err := s.GetSession(ctx, "AAAA000011112222")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

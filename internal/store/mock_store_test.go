// ABOUTME: Tests for MockStore behavior the SQLite store has no equivalent for
// ABOUTME: Covers injected create failures and copy-on-read isolation

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_FailCreate(t *testing.T) {
	store := NewMockStore()
	store.FailCreate = errors.New("disk full")

	err := store.CreateSession(context.Background(), record("AAAA000011112222", "alice", 0))
	assert.EqualError(t, err, "disk full")

	n, err := store.CountSessionsByOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	rec := record("AAAA000011112222", "alice", 0)
	require.NoError(t, store.CreateSession(ctx, rec))
	rec.OwnerID = "mallory"

	got, err := store.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)

	got.Host = "elsewhere"
	again, err := store.GetSession(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "play.example.net", again.Host)
}

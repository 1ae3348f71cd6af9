// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers file creation, persistence across reopen and timestamp handling

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tether.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.CreateSession(ctx, record("AAAA000011112222", "alice", 0)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.GetSession(ctx, "AAAA000011112222")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.OwnerID != "alice" || got.Port != 25565 {
		t.Errorf("unexpected record after reopen: %+v", got)
	}
}

func TestSQLiteStore_StoresTimesInUTC(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	local := time.FixedZone("UTC+2", 2*60*60)
	rec := record("AAAA000011112222", "alice", 0)
	rec.CreatedAt = time.Date(2026, 3, 1, 14, 0, 0, 0, local)
	if err := store.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	if got.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", got.CreatedAt.Location())
	}
}

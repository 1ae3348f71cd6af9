// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists session records with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id   TEXT PRIMARY KEY,
			key_hash     TEXT NOT NULL,
			owner_id     TEXT NOT NULL,
			host         TEXT NOT NULL,
			port         INTEGER NOT NULL,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			CHECK (port BETWEEN 0 AND 65535)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateSession inserts a new session record.
// Returns ErrDuplicateSession if the id is already stored.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	query := `
		INSERT INTO sessions (session_id, key_hash, owner_id, host, port, display_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.KeyHash,
		rec.OwnerID,
		rec.Host,
		rec.Port,
		rec.DisplayName,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session record", "id", rec.ID, "owner", rec.OwnerID)
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}

// GetSession retrieves a record by id.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
		SELECT session_id, key_hash, owner_id, host, port, display_name, created_at
		FROM sessions
		WHERE session_id = ?
	`

	rec, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return rec, nil
}

// ListSessionsByOwner returns every record owned by ownerID, oldest first.
func (s *SQLiteStore) ListSessionsByOwner(ctx context.Context, ownerID string) ([]*SessionRecord, error) {
	query := `
		SELECT session_id, key_hash, owner_id, host, port, display_name, created_at
		FROM sessions
		WHERE owner_id = ?
		ORDER BY created_at ASC, session_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var recs []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return recs, nil
}

// CountSessionsByOwner returns how many records ownerID has.
func (s *SQLiteStore) CountSessionsByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE owner_id = ?`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// DeleteSession removes a record.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted session record", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAtStr string
	if err := row.Scan(
		&rec.ID,
		&rec.KeyHash,
		&rec.OwnerID,
		&rec.Host,
		&rec.Port,
		&rec.DisplayName,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	var err error
	rec.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &rec, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

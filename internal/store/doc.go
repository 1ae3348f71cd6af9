// Package store persists session records for tether using SQLite.
//
// # Architecture
//
// Store is the interface the rest of the program depends on. Two
// implementations exist:
//
//   - SQLiteStore: modernc.org/sqlite (pure Go), WAL mode, schema created on open
//   - MockStore: in-memory, for tests
//
// # Data Model
//
// A SessionRecord holds what must survive a restart: the session id, the
// owner, the remote endpoint, the display name and a bcrypt hash of the
// access key. The plaintext key is shown once at creation and never stored.
//
// Whether a session is live is runtime state owned by the session package
// and is deliberately absent here.
//
// # Timestamps
//
// Times are stored as RFC3339 TEXT in UTC and parsed back on read.
//
// # Errors
//
//   - ErrNotFound: the record does not exist
//   - ErrDuplicateSession: a record with the same id already exists
package store

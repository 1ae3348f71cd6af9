// ABOUTME: Concurrent map of live sessions; presence of an entry means connected.
// ABOUTME: Shared read path for liveness queries, written only by supervisors.

package session

import (
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/remote"
)

// Entry describes a live session.
type Entry struct {
	ID          string
	Params      remote.Params
	ConnectedAt time.Time
}

// Liveness is one (id, live) pair of a snapshot.
type Liveness struct {
	ID   string
	Live bool
}

// Registry tracks which sessions are currently live. It is a lookup view
// only: supervisors own the connections behind the entries.
type Registry struct {
	entries map[string]Entry
	mu      sync.RWMutex
	logger  *slog.Logger
	clock   clock.PassiveClock
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock used to stamp and age entries. It should
// be the clock the supervisors use for ConnectedAt.
func WithRegistryClock(c clock.PassiveClock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// NewRegistry creates an empty Registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		entries: make(map[string]Entry),
		logger:  logger.With("component", "registry"),
		clock:   clock.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert adds a live session.
// Returns ErrAlreadyRegistered if the id is already present.
func (r *Registry) Insert(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.ID]; exists {
		return ErrAlreadyRegistered
	}
	if e.ConnectedAt.IsZero() {
		e.ConnectedAt = r.clock.Now()
	}

	r.entries[e.ID] = e
	r.logger.Info("=== SESSION LIVE ===",
		"session_id", e.ID,
		"addr", e.Params.Addr(),
		"name", e.Params.DisplayName,
		"total_live", len(r.entries),
	)
	return nil
}

// Remove deletes a session's entry and reports whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return false
	}
	delete(r.entries, id)
	r.logger.Info("=== SESSION OFFLINE ===",
		"session_id", id,
		"addr", e.Params.Addr(),
		"uptime", r.clock.Since(e.ConnectedAt).Round(time.Second),
		"total_live", len(r.entries),
	)
	return true
}

// IsLive reports whether the session currently has an entry.
func (r *Registry) IsLive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[id]
	return ok
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return e, ok
}

// Snapshot returns a liveness pair for each id, in the order given.
func (r *Registry) Snapshot(ids []string) []Liveness {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Liveness, len(ids))
	for i, id := range ids {
		_, ok := r.entries[id]
		out[i] = Liveness{ID: id, Live: ok}
	}
	return out
}

// List returns every live entry in no particular order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ABOUTME: Owner-facing session operations: quota, persistence and key checks.
// ABOUTME: Joins stored records with live state from the session manager.

package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/credential"
	"github.com/2389/tether/internal/remote"
	"github.com/2389/tether/internal/session"
	"github.com/2389/tether/internal/store"
)

// DefaultMaxPerOwner is the session quota when none is configured.
const DefaultMaxPerOwner = 2

// Status labels reported by List.
const (
	StatusOnline       = "online"
	StatusReconnecting = "reconnecting"
	StatusOffline      = "offline"
)

// ErrQuotaExceeded is returned when an owner already holds the maximum
// number of sessions.
var ErrQuotaExceeded = errors.New("session quota exceeded")

// ErrNotFound is returned when the session does not exist or belongs to
// someone else. The two cases are indistinguishable to callers.
var ErrNotFound = errors.New("session not found")

// Sessions is the part of *session.Manager the fleet uses.
type Sessions interface {
	Create(ctx context.Context, params remote.Params) (credential.Identity, error)
	Delete(ctx context.Context, id, suppliedKey, storedKey string) error
	Terminate(ctx context.Context, id string) error
	IsLive(id string) bool
	State(id string) (session.State, bool)
	Close(ctx context.Context) error
}

// Status is one row of List.
type Status struct {
	Record *store.SessionRecord
	Status string
}

// Fleet manages sessions on behalf of owners.
type Fleet struct {
	sessions    Sessions
	store       store.Store
	maxPerOwner int
	hashKey     func(string) (string, error)
	clock       clock.PassiveClock
	logger      *slog.Logger

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithMaxPerOwner sets the per-owner quota. Values below 1 keep the default.
func WithMaxPerOwner(n int) Option {
	return func(f *Fleet) {
		if n > 0 {
			f.maxPerOwner = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fleet) { f.logger = l }
}

// WithClock sets the clock used for record timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(f *Fleet) { f.clock = c }
}

// WithKeyHasher replaces credential.HashKey.
func WithKeyHasher(h func(string) (string, error)) Option {
	return func(f *Fleet) { f.hashKey = h }
}

// New creates a Fleet. The manager behind sessions must compare keys with
// credential.MatchHash, since the fleet hands it stored bcrypt hashes.
func New(sessions Sessions, st store.Store, opts ...Option) *Fleet {
	f := &Fleet{
		sessions:    sessions,
		store:       st,
		maxPerOwner: DefaultMaxPerOwner,
		hashKey:     credential.HashKey,
		clock:       clock.RealClock{},
		logger:      slog.Default(),
		owners:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "fleet")
	return f
}

// ownerLock serializes quota checks per owner.
func (f *Fleet) ownerLock(owner string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.owners[owner]
	if !ok {
		l = &sync.Mutex{}
		f.owners[owner] = l
	}
	return l
}

// Create starts a session for owner and stores its record. The returned
// identity holds the only copy of the plaintext key.
func (f *Fleet) Create(ctx context.Context, owner string, params remote.Params) (credential.Identity, error) {
	if owner == "" {
		return credential.Identity{}, errors.New("owner is required")
	}

	lock := f.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	n, _, err := f.prune(ctx, owner)
	if err != nil {
		return credential.Identity{}, err
	}
	if n >= f.maxPerOwner {
		f.logger.Info("session quota reached", "owner", owner, "count", n, "max", f.maxPerOwner)
		return credential.Identity{}, ErrQuotaExceeded
	}

	ident, err := f.sessions.Create(ctx, params)
	if err != nil {
		return credential.Identity{}, err
	}

	hash, err := f.hashKey(ident.Key)
	if err != nil {
		f.rollback(ident)
		return credential.Identity{}, fmt.Errorf("hashing session key: %w", err)
	}

	if params.Port == 0 {
		params.Port = remote.DefaultPort
	}
	if params.DisplayName == "" {
		params.DisplayName = session.DisplayNamePrefix + ident.ID
	}

	rec := &store.SessionRecord{
		ID:          ident.ID,
		KeyHash:     hash,
		OwnerID:     owner,
		Host:        params.Host,
		Port:        params.Port,
		DisplayName: params.DisplayName,
		CreatedAt:   f.clock.Now().UTC().Truncate(time.Second),
	}
	if err := f.store.CreateSession(ctx, rec); err != nil {
		f.rollback(ident)
		return credential.Identity{}, fmt.Errorf("storing session: %w", err)
	}

	f.logger.Info("session created", "owner", owner, "session_id", ident.ID, "addr", params.Addr())
	return ident, nil
}

// rollback stops a live session whose record could not be stored.
func (f *Fleet) rollback(ident credential.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.sessions.Terminate(ctx, ident.ID); err != nil {
		f.logger.Error("rollback: terminating session", "session_id", ident.ID, "error", err)
	}
}

// Prune removes owner's records that no running session backs, such as
// those left behind by a process that exited without Shutdown. It returns
// how many were removed.
func (f *Fleet) Prune(ctx context.Context, owner string) (int, error) {
	lock := f.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	_, pruned, err := f.prune(ctx, owner)
	return pruned, err
}

// prune drops orphaned records and counts the ones left. The caller holds
// owner's lock.
func (f *Fleet) prune(ctx context.Context, owner string) (kept, pruned int, err error) {
	recs, err := f.store.ListSessionsByOwner(ctx, owner)
	if err != nil {
		return 0, 0, fmt.Errorf("listing sessions: %w", err)
	}

	for _, rec := range recs {
		if _, tracked := f.sessions.State(rec.ID); tracked {
			kept++
			continue
		}
		if err := f.store.DeleteSession(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return kept, pruned, fmt.Errorf("pruning session record: %w", err)
		}
		pruned++
		f.logger.Warn("pruned record with no running session", "owner", owner, "session_id", rec.ID)
	}
	return kept, pruned, nil
}

// Delete stops one of owner's sessions and removes its record.
func (f *Fleet) Delete(ctx context.Context, owner, id, key string) error {
	rec, err := f.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && rec.OwnerID != owner) {
		// Burn the same bcrypt time as a real check.
		credential.MatchHash(key, "")
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	err = f.sessions.Delete(ctx, id, key, rec.KeyHash)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		// The record outlived the process that ran it.
		f.logger.Warn("removing record with no running session", "session_id", id)
	default:
		return err
	}

	if err := f.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting session record: %w", err)
	}

	f.logger.Info("session deleted", "owner", owner, "session_id", id)
	return nil
}

// List returns owner's records with their current status.
func (f *Fleet) List(ctx context.Context, owner string) ([]Status, error) {
	recs, err := f.store.ListSessionsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make([]Status, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Status{Record: rec, Status: f.status(rec.ID)})
	}
	return out, nil
}

func (f *Fleet) status(id string) string {
	if f.sessions.IsLive(id) {
		return StatusOnline
	}
	st, ok := f.sessions.State(id)
	if ok && (st == session.StateConnecting || st == session.StateDisconnected) {
		return StatusReconnecting
	}
	return StatusOffline
}

// Shutdown terminates every running session. Records are kept.
func (f *Fleet) Shutdown(ctx context.Context) error {
	return f.sessions.Close(ctx)
}

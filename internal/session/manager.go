// ABOUTME: Manager facade: create, delete and query sessions by id.
// ABOUTME: Tracks one Supervisor per session and answers liveness from the Registry.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/behavior"
	"github.com/2389/tether/internal/credential"
	"github.com/2389/tether/internal/dedupe"
	"github.com/2389/tether/internal/remote"
)

// DisplayNamePrefix prefixes the generated id when Params carries no name.
const DisplayNamePrefix = "Tether_"

const (
	errLogWindow = time.Minute
	errLogSize   = 1024
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for reconnect delays and behavior timers.
func WithClock(c clock.WithTickerAndDelayedExecution) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRand sets the factory producing each session's random source.
func WithRand(f func() behavior.Rand) Option {
	return func(m *Manager) { m.newRand = f }
}

// WithIdentityGenerator replaces credential.Generate.
func WithIdentityGenerator(f func() (credential.Identity, error)) Option {
	return func(m *Manager) { m.generate = f }
}

// WithKeyComparer replaces the plain constant-time key comparison, e.g.
// with credential.MatchHash when stored keys are bcrypt hashes.
func WithKeyComparer(f func(supplied, stored string) bool) Option {
	return func(m *Manager) { m.compareKey = f }
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager is the entry point for session lifecycle operations.
type Manager struct {
	registry   *Registry
	dialer     remote.Dialer
	clock      clock.WithTickerAndDelayedExecution
	logger     *slog.Logger
	newRand    func() behavior.Rand
	generate   func() (credential.Identity, error)
	compareKey func(supplied, stored string) bool
	observer   Observer
	errLog     *dedupe.Cache

	mu          sync.Mutex
	supervisors map[string]*Supervisor
	closed      bool
}

// NewManager creates a Manager that dials through dialer and records live
// sessions in registry.
func NewManager(registry *Registry, dialer remote.Dialer, opts ...Option) *Manager {
	m := &Manager{
		registry:    registry,
		dialer:      dialer,
		clock:       clock.RealClock{},
		logger:      slog.Default(),
		newRand:     func() behavior.Rand { return behavior.GlobalRand{} },
		generate:    credential.Generate,
		compareKey:  credential.Equal,
		observer:    NopObserver{},
		supervisors: make(map[string]*Supervisor),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	m.errLog = dedupe.New(errLogWindow, errLogSize, m.clock)
	return m
}

// Create starts a new session against params and returns once it is live.
// Any failure is a *CreationError; the session is then not tracked.
func (m *Manager) Create(ctx context.Context, params remote.Params) (credential.Identity, error) {
	if err := params.Validate(); err != nil {
		return credential.Identity{}, &CreationError{Err: err}
	}

	ident, err := m.generate()
	if err != nil {
		m.logger.Error("identity generation failed", "error", err)
		m.observer.CreateFinished(err)
		return credential.Identity{}, &CreationError{Err: err}
	}

	if params.Port == 0 {
		params.Port = remote.DefaultPort
	}
	if params.DisplayName == "" {
		params.DisplayName = DisplayNamePrefix + ident.ID
	}

	sup := newSupervisor(supervisorConfig{
		identity: ident,
		params:   params,
		dialer:   m.dialer,
		registry: m.registry,
		clock:    m.clock,
		rand:     m.newRand(),
		logger:   m.logger,
		observer: m.observer,
		errLog:   m.errLog,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sup.cancel()
		return credential.Identity{}, &CreationError{ID: ident.ID, Err: ErrManagerClosed}
	}
	if _, dup := m.supervisors[ident.ID]; dup || m.registry.IsLive(ident.ID) {
		m.mu.Unlock()
		sup.cancel()
		m.observer.CreateFinished(ErrIdentityCollision)
		return credential.Identity{}, &CreationError{ID: ident.ID, Err: ErrIdentityCollision}
	}
	m.supervisors[ident.ID] = sup
	m.mu.Unlock()

	m.logger.Info("creating session", "session_id", ident.ID, "addr", params.Addr(), "name", params.DisplayName)
	sup.Start()

	select {
	case err := <-sup.Ready():
		if err != nil {
			m.forget(ident.ID, sup)
			m.observer.CreateFinished(err)
			return credential.Identity{}, &CreationError{ID: ident.ID, Err: err}
		}
	case <-ctx.Done():
		_ = sup.Terminate(context.Background())
		m.forget(ident.ID, sup)
		m.observer.CreateFinished(ctx.Err())
		return credential.Identity{}, &CreationError{ID: ident.ID, Err: ctx.Err()}
	}

	m.observer.CreateFinished(nil)
	return ident, nil
}

// Delete terminates a session after checking the supplied key against the
// stored one. It returns ErrUnauthorized or ErrNotFound without side effects.
func (m *Manager) Delete(ctx context.Context, id, suppliedKey, storedKey string) error {
	if !m.compareKey(suppliedKey, storedKey) {
		m.logger.Warn("session delete rejected", "session_id", id)
		return ErrUnauthorized
	}

	return m.Terminate(ctx, id)
}

// Terminate stops a session without a key check. It is for callers that
// already own the session, such as one undoing its own Create.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	sup, ok := m.lookup(id)
	if !ok {
		return ErrNotFound
	}

	if err := sup.Terminate(ctx); err != nil {
		return fmt.Errorf("terminating session %s: %w", id, err)
	}
	m.forget(id, sup)

	m.logger.Info("=== SESSION DELETED ===", "session_id", id)
	return nil
}

// IsLive reports whether the session is currently connected.
func (m *Manager) IsLive(id string) bool {
	return m.registry.IsLive(id)
}

// Snapshot returns the liveness of each id in order.
func (m *Manager) Snapshot(ids []string) []Liveness {
	return m.registry.Snapshot(ids)
}

// State returns the supervisor state for a tracked session.
func (m *Manager) State(id string) (State, bool) {
	sup, ok := m.lookup(id)
	if !ok {
		return StateTerminated, false
	}
	return sup.State(), true
}

// IDs returns the ids of every tracked session.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.supervisors))
	for id := range m.supervisors {
		ids = append(ids, id)
	}
	return ids
}

// Close terminates every session and refuses further creates.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sups := make([]*Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		sups = append(sups, sup)
	}
	m.mu.Unlock()

	m.logger.Info("terminating sessions", "count", len(sups))

	g, gctx := errgroup.WithContext(ctx)
	for _, sup := range sups {
		g.Go(func() error {
			if err := sup.Terminate(gctx); err != nil {
				return fmt.Errorf("terminating session %s: %w", sup.ID(), err)
			}
			m.forget(sup.ID(), sup)
			return nil
		})
	}
	err := g.Wait()
	m.errLog.Close()
	return err
}

func (m *Manager) lookup(id string) (*Supervisor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sup, ok := m.supervisors[id]
	return sup, ok
}

// forget drops id only if it still maps to sup.
func (m *Manager) forget(id string, sup *Supervisor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.supervisors[id] == sup {
		delete(m.supervisors, id)
	}
}

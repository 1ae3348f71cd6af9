// ABOUTME: Per-session state machine that keeps one remote connection alive.
// ABOUTME: A single event loop serializes dial results, drops, retries and termination.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/behavior"
	"github.com/2389/tether/internal/credential"
	"github.com/2389/tether/internal/dedupe"
	"github.com/2389/tether/internal/remote"
)

// ReconnectDelay is the fixed pause between losing a connection and dialing again.
const ReconnectDelay = 10 * time.Second

// ReasonTerminated is the SessionDown reason for an explicit teardown.
const ReasonTerminated = "terminated"

// State is a supervisor's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateLive
	StateDisconnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDisconnected:
		return "disconnected"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Events consumed by the loop. gen ties connection-scoped events to the
// dial that produced them.
type (
	evDialed struct {
		gen  uint64
		conn remote.Conn
		err  error
	}
	evReady struct {
		gen uint64
	}
	evDropped struct {
		gen    uint64
		reason string
	}
	evConnError struct {
		gen uint64
		err error
	}
	evRetry struct {
		gen uint64
	}
	evTerminate struct {
		done chan struct{}
	}
)

// listener forwards connection callbacks into the mailbox.
type listener struct {
	mb  *mailbox
	gen uint64
}

func (l *listener) OnReady()                   { l.mb.post(evReady{gen: l.gen}) }
func (l *listener) OnTerminated(reason string) { l.mb.post(evDropped{gen: l.gen, reason: reason}) }
func (l *listener) OnError(err error)          { l.mb.post(evConnError{gen: l.gen, err: err}) }

type supervisorConfig struct {
	identity credential.Identity
	params   remote.Params
	dialer   remote.Dialer
	registry *Registry
	clock    clock.WithTickerAndDelayedExecution
	rand     behavior.Rand
	logger   *slog.Logger
	observer Observer
	errLog   *dedupe.Cache
}

// Supervisor owns one session: its connection, its behavior scheduler and
// its reconnect timer. All of that state is touched only by the loop
// goroutine; other goroutines talk to it through the mailbox.
type Supervisor struct {
	cfg    supervisorConfig
	logger *slog.Logger
	mb     *mailbox
	retry  backoff.BackOff
	state  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	first  chan error
	exited chan struct{}

	// loop-owned
	gen           uint64
	conn          remote.Conn
	sched         *behavior.Scheduler
	timer         clock.Timer
	everLive      bool
	awaitingFirst bool
	droppedGen    uint64
	droppedReason string
}

func newSupervisor(cfg supervisorConfig) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:           cfg,
		logger:        cfg.logger.With("session_id", cfg.identity.ID),
		mb:            newMailbox(),
		retry:         backoff.NewConstantBackOff(ReconnectDelay),
		ctx:           ctx,
		cancel:        cancel,
		first:         make(chan error, 1),
		exited:        make(chan struct{}),
		awaitingFirst: true,
	}
}

// ID returns the session id.
func (s *Supervisor) ID() string {
	return s.cfg.identity.ID
}

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Ready yields exactly one value: nil once the session first goes live, or
// the reason it never did.
func (s *Supervisor) Ready() <-chan error {
	return s.first
}

// Done is closed when the loop has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.exited
}

// Start launches the loop and the first dial.
func (s *Supervisor) Start() {
	s.startDial()
	go s.run()
}

// Terminate tears the session down and waits for the loop to finish the
// teardown. Terminating an already terminated supervisor succeeds at once.
func (s *Supervisor) Terminate(ctx context.Context) error {
	done := make(chan struct{})
	if !s.mb.post(evTerminate{done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run() {
	defer close(s.exited)

	for range s.mb.ready {
		for {
			ev, ok := s.mb.pop()
			if !ok {
				break
			}
			s.handle(ev)
			if s.State() == StateTerminated {
				for _, late := range s.mb.close() {
					s.discard(late)
				}
				return
			}
		}
	}
}

func (s *Supervisor) handle(ev any) {
	switch ev := ev.(type) {
	case evDialed:
		s.onDialed(ev)
	case evReady:
		if ev.gen == s.gen {
			s.logger.Debug("connection reported ready")
		}
	case evDropped:
		s.onDropped(ev)
	case evConnError:
		s.onConnError(ev)
	case evRetry:
		s.onRetry(ev)
	case evTerminate:
		s.onTerminate(ev)
	}
}

// discard releases whatever a late event carries once the loop is gone.
func (s *Supervisor) discard(ev any) {
	switch ev := ev.(type) {
	case evDialed:
		if ev.conn != nil {
			_ = ev.conn.Disconnect()
		}
	case evTerminate:
		close(ev.done)
	}
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Supervisor) startDial() {
	s.gen++
	gen := s.gen
	s.setState(StateConnecting)

	l := &listener{mb: s.mb, gen: gen}
	go func() {
		conn, err := s.cfg.dialer.Dial(s.ctx, s.cfg.params, l)
		if !s.mb.post(evDialed{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Disconnect()
		}
	}()
}

func (s *Supervisor) onDialed(ev evDialed) {
	if ev.gen != s.gen || s.State() != StateConnecting {
		if ev.conn != nil {
			s.logger.Debug("discarding stale connection")
			_ = ev.conn.Disconnect()
		}
		return
	}

	err := ev.err
	if err == nil && s.droppedGen == ev.gen {
		_ = ev.conn.Disconnect()
		err = &remote.ConnectError{
			Addr: s.cfg.params.Addr(),
			Err:  fmt.Errorf("terminated during login: %s", s.droppedReason),
		}
	}

	if err != nil {
		if !s.everLive {
			s.logger.Warn("initial connection failed", "addr", s.cfg.params.Addr(), "error", err)
			s.resolveFirst(err)
			s.setState(StateTerminated)
			s.cancel()
			return
		}
		s.logger.Warn("reconnect attempt failed", "addr", s.cfg.params.Addr(), "error", err)
		s.scheduleReconnect()
		return
	}

	s.conn = ev.conn
	s.sched = behavior.New(ev.conn, behavior.Options{
		Clock:    s.cfg.clock,
		Rand:     s.cfg.rand,
		Logger:   s.logger,
		Observer: s.cfg.observer,
	})
	s.sched.Start()

	if err := s.cfg.registry.Insert(Entry{
		ID:          s.cfg.identity.ID,
		Params:      s.cfg.params,
		ConnectedAt: s.cfg.clock.Now(),
	}); err != nil {
		s.logger.Error("registry insert failed", "error", err)
	}

	s.setState(StateLive)
	s.everLive = true
	s.retry.Reset()
	s.cfg.observer.SessionUp(s.cfg.identity.ID)
	s.resolveFirst(nil)
}

func (s *Supervisor) onDropped(ev evDropped) {
	if ev.gen != s.gen {
		s.logger.Debug("ignoring termination from stale connection", "reason", ev.reason)
		return
	}

	switch s.State() {
	case StateConnecting:
		// The dial has not returned yet; onDialed picks this up.
		s.droppedGen = ev.gen
		s.droppedReason = ev.reason
	case StateLive:
		s.logger.Warn("session dropped, reconnecting",
			"reason", ev.reason,
			"delay", ReconnectDelay,
		)
		s.teardownConn()
		s.cfg.observer.SessionDown(s.cfg.identity.ID, ev.reason)
		s.scheduleReconnect()
	}
}

func (s *Supervisor) onConnError(ev evConnError) {
	if ev.err == nil {
		return
	}
	key := s.cfg.identity.ID + "|" + ev.err.Error()
	if s.cfg.errLog.CheckAndMark(key) {
		s.logger.Debug("connection error repeated", "error", ev.err, "repeats", s.cfg.errLog.Repeats(key))
		return
	}
	s.logger.Warn("connection error", "error", ev.err, "stale", ev.gen != s.gen)
}

func (s *Supervisor) onRetry(ev evRetry) {
	if ev.gen != s.gen || s.State() != StateDisconnected {
		return
	}
	s.timer = nil
	s.logger.Info("reconnecting", "addr", s.cfg.params.Addr())
	s.startDial()
}

func (s *Supervisor) onTerminate(ev evTerminate) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	wasLive := s.State() == StateLive
	s.teardownConn()
	if wasLive {
		s.cfg.observer.SessionDown(s.cfg.identity.ID, ReasonTerminated)
	}

	s.setState(StateTerminated)
	s.cancel()
	s.resolveFirst(ErrTerminated)
	s.logger.Info("session terminated")
	close(ev.done)
}

// teardownConn stops the scheduler, drops the registry entry and closes
// the connection, in that order.
func (s *Supervisor) teardownConn() {
	if s.sched != nil {
		s.sched.Stop()
		s.sched = nil
	}
	s.cfg.registry.Remove(s.cfg.identity.ID)
	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			s.logger.Debug("disconnect failed", "error", err)
		}
		s.conn = nil
	}
}

func (s *Supervisor) scheduleReconnect() {
	delay := s.retry.NextBackOff()
	if delay == backoff.Stop {
		delay = ReconnectDelay
	}

	// Bump the generation so signals from the old connection are ignored.
	s.gen++
	gen := s.gen
	s.timer = s.cfg.clock.AfterFunc(delay, func() {
		s.mb.post(evRetry{gen: gen})
	})
	s.setState(StateDisconnected)
	s.cfg.observer.ReconnectScheduled(s.cfg.identity.ID, delay)
}

func (s *Supervisor) resolveFirst(err error) {
	if !s.awaitingFirst {
		return
	}
	s.awaitingFirst = false
	s.first <- err
}

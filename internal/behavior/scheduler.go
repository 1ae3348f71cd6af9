// ABOUTME: Periodic low-impact actions that keep a live connection looking active.
// ABOUTME: Runs orientation sweeps, drift moves and idle pulses on independent tickers.

package behavior

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/remote"
)

// Task names one of the scheduler's periodic jobs.
type Task string

const (
	TaskSweep Task = "orientation_sweep"
	TaskDrift Task = "drift"
	TaskIdle  Task = "idle_pulse"
)

// Schedule constants. These are fixed for every session.
const (
	SweepInterval = 5 * time.Minute
	SweepDuration = time.Second
	SweepSteps    = 20

	DriftInterval   = 5 * time.Second
	DriftRadius     = 5
	JumpProbability = 0.3
	JumpHold        = 500 * time.Millisecond

	IdleInterval = time.Minute
	SneakMin     = 500 * time.Millisecond
	SneakSpread  = time.Second
)

// Rand is the randomness the scheduler draws from. The scheduler serializes
// its calls, so implementations need not be safe for concurrent use and a
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Observer is told about every task run and every failed command.
type Observer interface {
	TaskFired(task Task)
	CommandFailed(task Task, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) TaskFired(Task)            {}
func (NopObserver) CommandFailed(Task, error) {}

// CommandError wraps a command that failed against a live connection.
type CommandError struct {
	Task    Task
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Task, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Options configures a Scheduler. Zero values fall back to the real clock,
// the global math/rand/v2 source, slog.Default and a NopObserver.
type Options struct {
	Clock    clock.WithTicker
	Rand     Rand
	Logger   *slog.Logger
	Observer Observer
}

// Scheduler runs the periodic tasks against one connection.
type Scheduler struct {
	conn     remote.Conn
	clock    clock.WithTicker
	rand     Rand
	logger   *slog.Logger
	observer Observer

	// randMu serializes draws; the three task goroutines share one Rand.
	randMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler for conn. Call Start to begin issuing commands.
func New(conn remote.Conn, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Rand == nil {
		opts.Rand = GlobalRand{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Scheduler{
		conn:     conn,
		clock:    opts.Clock,
		rand:     opts.Rand,
		logger:   opts.Logger.With("component", "behavior"),
		observer: opts.Observer,
		stop:     make(chan struct{}),
	}
}

// Start arms the three tickers. Calling Start twice, or after Stop, does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	// Tickers are created here rather than in the goroutines so that the
	// schedule is anchored to Start.
	s.spawn(TaskSweep, s.clock.NewTicker(SweepInterval), s.sweep)
	s.spawn(TaskDrift, s.clock.NewTicker(DriftInterval), s.drift)
	s.spawn(TaskIdle, s.clock.NewTicker(IdleInterval), s.idle)
}

// Stop cancels every task and waits for in-flight runs to finish. Held
// controls are released before Stop returns; nothing is issued afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) spawn(task Task, ticker clock.Ticker, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C():
			}

			// A tick that raced with Stop must not run.
			select {
			case <-s.stop:
				return
			default:
			}

			s.run(task, fn)
		}
	}()
}

// run executes one task, keeping a panicking command from killing the loop.
func (s *Scheduler) run(task Task, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("behavior task panicked", "task", task, "panic", r)
			s.observer.CommandFailed(task, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// sweep turns a full circle in SweepSteps evenly spaced looks.
func (s *Scheduler) sweep() {
	if !s.conn.Ready() {
		s.logger.Debug("skipping orientation sweep, connection not ready")
		return
	}
	s.observer.TaskFired(TaskSweep)

	yaw, pitch := s.conn.Heading()
	step := SweepDuration / SweepSteps
	for i := 1; i <= SweepSteps; i++ {
		if !s.wait(step) {
			return
		}
		target := yaw + 2*math.Pi*float64(i)/SweepSteps
		s.check(TaskSweep, "look", s.conn.Look(target, pitch))
	}
}

// drift wanders to a nearby point and sometimes hops.
func (s *Scheduler) drift() {
	if !s.conn.Ready() {
		s.logger.Debug("skipping drift, connection not ready")
		return
	}
	s.observer.TaskFired(TaskDrift)

	dx := s.offset()
	dz := s.offset()
	s.check(TaskDrift, "navigate", s.conn.Navigate(dx, 0, dz))

	if s.drawFloat() < JumpProbability {
		s.pulse(TaskDrift, remote.ControlJump, JumpHold)
	}
}

// offset returns an integer uniformly drawn from [-DriftRadius, DriftRadius].
func (s *Scheduler) offset() int {
	return s.drawInt(2*DriftRadius+1) - DriftRadius
}

func (s *Scheduler) drawInt(n int) int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.IntN(n)
}

func (s *Scheduler) drawFloat() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64()
}

// idle swings and crouches for a random moment so the remote sees input.
func (s *Scheduler) idle() {
	s.observer.TaskFired(TaskIdle)

	s.check(TaskIdle, "swing", s.conn.Swing())

	hold := SneakMin + time.Duration(s.drawInt(int(SneakSpread/time.Millisecond)))*time.Millisecond
	s.pulse(TaskIdle, remote.ControlSneak, hold)
}

// pulse engages ctl, holds it, then releases it. The release is issued even
// when the hold is cut short by Stop so no control is left engaged.
func (s *Scheduler) pulse(task Task, ctl remote.Control, hold time.Duration) {
	if err := s.conn.SetControl(ctl, true); err != nil {
		s.check(task, string(ctl)+" on", err)
		return
	}
	s.wait(hold)
	s.check(task, string(ctl)+" off", s.conn.SetControl(ctl, false))
}

// wait sleeps on the scheduler clock. It returns false if Stop was called.
func (s *Scheduler) wait(d time.Duration) bool {
	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C():
		return true
	case <-s.stop:
		return false
	}
}

func (s *Scheduler) check(task Task, command string, err error) {
	if err == nil {
		return
	}
	cerr := &CommandError{Task: task, Command: command, Err: err}
	s.logger.Warn("behavior command failed", "task", task, "command", command, "error", err)
	s.observer.CommandFailed(task, cerr)
}

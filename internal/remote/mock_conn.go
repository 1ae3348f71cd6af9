// ABOUTME: Scriptable in-memory Dialer and Conn for testing sessions and behaviors.
// ABOUTME: Records issued commands and lets tests inject failures and terminations.

package remote

import (
	"context"
	"errors"
	"sync"
)

// ErrMockDial is a stock failure for MockDialer.Script.
var ErrMockDial = errors.New("mock dial failed")

// Command names recorded by MockConn.
const (
	CmdLook       = "look"
	CmdNavigate   = "navigate"
	CmdSwing      = "swing"
	CmdSetControl = "control"
)

// Command is one recorded call on a MockConn.
type Command struct {
	Name    string
	Yaw     float64
	Pitch   float64
	DX      int
	DY      int
	DZ      int
	Control Control
	On      bool
}

// MockDialer hands out MockConns. Outcomes queued with Script are consumed
// in order; once the queue is empty every dial succeeds.
type MockDialer struct {
	mu       sync.Mutex
	outcomes []error
	conns    []*MockConn
	dials    int
	gate     chan struct{}
}

// NewMockDialer creates a MockDialer whose dials succeed by default.
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// Script queues outcomes for upcoming dials; nil means success.
func (d *MockDialer) Script(outcomes ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, outcomes...)
}

// Hold makes subsequent dials block until the returned release func is
// called. Held dials ignore ctx so tests can deliver a result after the
// session has already been torn down.
func (d *MockDialer) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Dial implements Dialer.
func (d *MockDialer) Dial(ctx context.Context, params Params, l Listener) (Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	} else if err := ctx.Err(); err != nil {
		return nil, &ConnectError{Addr: params.Addr(), Err: err}
	}

	d.mu.Lock()
	var outcome error
	if len(d.outcomes) > 0 {
		outcome = d.outcomes[0]
		d.outcomes = d.outcomes[1:]
	}
	if outcome != nil {
		d.mu.Unlock()
		return nil, &ConnectError{Addr: params.Addr(), Err: outcome}
	}
	conn := &MockConn{Params: params, listener: l, ready: true}
	d.conns = append(d.conns, conn)
	d.mu.Unlock()

	l.OnReady()
	return conn, nil
}

// DialCount returns how many times Dial has been called.
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns returns every connection handed out so far, oldest first.
func (d *MockDialer) Conns() []*MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockConn, len(d.conns))
	copy(out, d.conns)
	return out
}

// Last returns the most recent connection, or nil.
func (d *MockDialer) Last() *MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// MockConn is an in-memory Conn.
type MockConn struct {
	Params Params

	mu           sync.Mutex
	listener     Listener
	ready        bool
	terminated   bool
	disconnected bool
	yaw, pitch   float64
	commands     []Command
	failure      func(Command) error
}

// NewMockConn returns a ready MockConn that reports to l.
func NewMockConn(l Listener) *MockConn {
	if l == nil {
		l = NopListener{}
	}
	return &MockConn{listener: l, ready: true}
}

func (c *MockConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.terminated && !c.disconnected
}

func (c *MockConn) Heading() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw, c.pitch
}

func (c *MockConn) Look(yaw, pitch float64) error {
	return c.issue(Command{Name: CmdLook, Yaw: yaw, Pitch: pitch}, func() {
		c.yaw, c.pitch = yaw, pitch
	})
}

func (c *MockConn) Navigate(dx, dy, dz int) error {
	return c.issue(Command{Name: CmdNavigate, DX: dx, DY: dy, DZ: dz}, nil)
}

func (c *MockConn) Swing() error {
	return c.issue(Command{Name: CmdSwing}, nil)
}

func (c *MockConn) SetControl(ctl Control, on bool) error {
	return c.issue(Command{Name: CmdSetControl, Control: ctl, On: on}, nil)
}

// issue records cmd unless the link is gone. Failed commands are recorded too.
func (c *MockConn) issue(cmd Command, apply func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated || c.disconnected {
		return nil
	}
	c.commands = append(c.commands, cmd)
	if c.failure != nil {
		if err := c.failure(cmd); err != nil {
			return err
		}
	}
	if apply != nil {
		apply()
	}
	return nil
}

// Disconnect closes the link locally. It does not fire OnTerminated.
func (c *MockConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

// Terminate simulates a remote-side termination and fires OnTerminated.
func (c *MockConn) Terminate(reason string) {
	c.mu.Lock()
	if c.terminated || c.disconnected {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	l := c.listener
	c.mu.Unlock()

	if l != nil {
		l.OnTerminated(reason)
	}
}

// FireTerminated delivers OnTerminated even if the conn was already closed,
// the way a late event from a dead link would arrive.
func (c *MockConn) FireTerminated(reason string) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		l.OnTerminated(reason)
	}
}

// EmitError delivers a non-fatal error to the listener.
func (c *MockConn) EmitError(err error) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		l.OnError(err)
	}
}

// SetReady toggles what Ready reports without ending the link.
func (c *MockConn) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// FailWith installs a hook deciding which commands fail.
func (c *MockConn) FailWith(fn func(Command) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = fn
}

// Commands returns a copy of every recorded command.
func (c *MockConn) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.commands))
	copy(out, c.commands)
	return out
}

// Count returns how many commands with the given name were recorded.
func (c *MockConn) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.commands {
		if cmd.Name == name {
			n++
		}
	}
	return n
}

// Disconnected reports whether Disconnect was called.
func (c *MockConn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

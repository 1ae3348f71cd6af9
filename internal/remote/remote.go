// ABOUTME: Connection contract between a session and its remote endpoint.
// ABOUTME: Defines Dialer, Conn, Listener, connection params and ConnectError.

package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// DefaultPort is used when Params.Port is zero.
const DefaultPort = 25565

// ErrRejected indicates the remote endpoint refused the session's identity.
var ErrRejected = errors.New("remote rejected login")

// Params identifies the remote endpoint and the name the session presents.
// Params are fixed for the lifetime of a session.
type Params struct {
	Host        string
	Port        int
	DisplayName string
}

// Addr returns host:port, substituting DefaultPort for a zero port.
func (p Params) Addr() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Validate checks that the params can be dialed.
func (p Params) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("host is required")
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Port)
	}
	return nil
}

// Control is a held input toggled on the remote side.
type Control string

const (
	ControlJump  Control = "jump"
	ControlSneak Control = "sneak"
)

// Listener receives asynchronous lifecycle signals from a Conn.
// Implementations must not block.
type Listener interface {
	// OnReady fires once the remote has accepted the session.
	OnReady()
	// OnTerminated fires exactly once when the link ends for any reason
	// other than a local Disconnect (kick, abnormal close, failed keepalive).
	OnTerminated(reason string)
	// OnError reports a non-fatal problem; the connection keeps running.
	OnError(err error)
}

// Conn is a single live link to a remote endpoint.
// Commands issued after the link has terminated are no-ops and return nil.
type Conn interface {
	Ready() bool
	// Heading returns the last known orientation in radians.
	Heading() (yaw, pitch float64)
	Look(yaw, pitch float64) error
	// Navigate asks the remote to path to an offset from the current position.
	Navigate(dx, dy, dz int) error
	Swing() error
	SetControl(c Control, on bool) error
	Disconnect() error
}

// Dialer opens connections. Dial blocks until the remote is ready or the
// attempt fails; failures are returned as *ConnectError.
type Dialer interface {
	Dial(ctx context.Context, params Params, l Listener) (Conn, error)
}

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// NopListener discards every signal.
type NopListener struct{}

func (NopListener) OnReady()            {}
func (NopListener) OnTerminated(string) {}
func (NopListener) OnError(error)       {}

// ABOUTME: remote.Dialer over a websocket carrying JSON messages.
// ABOUTME: Performs the login handshake and returns once the server spawns the session.

package wsconn

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/remote"
)

// Defaults for zero Dialer fields.
const (
	DefaultPath        = "/tether"
	DefaultDialTimeout = 30 * time.Second
	DefaultKeepalive   = 30 * time.Second

	writeTimeout = 5 * time.Second
)

// Dialer connects sessions to servers speaking the tether websocket protocol.
type Dialer struct {
	// Path is the websocket endpoint on the remote host.
	Path string
	// DialTimeout bounds the TCP, upgrade and login handshake together.
	DialTimeout time.Duration
	// Keepalive is the ping interval. A link that has shown no traffic and
	// no pong for two intervals is considered dead.
	Keepalive time.Duration

	Clock  clock.WithTicker
	Logger *slog.Logger
}

func (d *Dialer) url(params remote.Params) string {
	path := d.Path
	if path == "" {
		path = DefaultPath
	}
	u := url.URL{Scheme: "ws", Host: params.Addr(), Path: path}
	return u.String()
}

// Dial implements remote.Dialer.
func (d *Dialer) Dial(ctx context.Context, params remote.Params, l remote.Listener) (remote.Conn, error) {
	fail := func(err error) error {
		return &remote.ConnectError{Addr: params.Addr(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	ws, resp, err := wd.DialContext(dialCtx, d.url(params), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctxErr := dialCtx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, fail(err)
	}

	// Unblock the handshake reads if ctx ends first.
	stop := context.AfterFunc(dialCtx, func() { _ = ws.Close() })
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
		_ = ws.SetWriteDeadline(deadline)
	}

	spawn, err := login(ws, params.DisplayName)
	if !stop() {
		_ = ws.Close()
		return nil, fail(dialCtx.Err())
	}
	if err != nil {
		_ = ws.Close()
		return nil, fail(err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	keepalive := d.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}

	_ = ws.SetWriteDeadline(time.Time{})
	c := newConn(ws, l, clk, keepalive, logger.With("component", "wsconn", "addr", params.Addr()))
	c.yaw, c.pitch = spawn.Yaw, spawn.Pitch

	l.OnReady()
	c.start()
	return c, nil
}

// login sends the login message and reads until the server accepts or
// refuses it.
func login(ws *websocket.Conn, name string) (Message, error) {
	if err := ws.WriteJSON(Message{Type: TypeLogin, Name: name}); err != nil {
		return Message{}, fmt.Errorf("sending login: %w", err)
	}
	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			return Message{}, fmt.Errorf("awaiting spawn: %w", err)
		}
		switch m.Type {
		case TypeSpawn:
			return m, nil
		case TypeKick:
			return Message{}, fmt.Errorf("%w: %s", remote.ErrRejected, m.Reason)
		case TypeError:
			return Message{}, fmt.Errorf("%w: %s", remote.ErrRejected, m.Text)
		}
	}
}

var _ remote.Dialer = (*Dialer)(nil)

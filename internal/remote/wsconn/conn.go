// ABOUTME: remote.Conn backed by a websocket; owns the read loop and keepalive pings.
// ABOUTME: Reports kicks, abnormal closes and missed pongs once through OnTerminated.

package wsconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/remote"
)

// Conn is one websocket link.
type Conn struct {
	ws        *websocket.Conn
	listener  remote.Listener
	clock     clock.WithTicker
	keepalive time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// writeMu serializes data frames; gorilla allows one writer at a time.
	writeMu sync.Mutex

	mu         sync.Mutex
	yaw, pitch float64
	closed     bool
}

func newConn(ws *websocket.Conn, l remote.Listener, clk clock.WithTicker, keepalive time.Duration, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:        ws,
		listener:  l,
		clock:     clk,
		keepalive: keepalive,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// pongWait is how long the link may stay silent before it is declared dead.
func (c *Conn) pongWait() time.Duration {
	return 2 * c.keepalive
}

func (c *Conn) start() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
}

func (c *Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) Heading() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw, c.pitch
}

func (c *Conn) Look(yaw, pitch float64) error {
	if err := c.send(Message{Type: TypeLook, Yaw: yaw, Pitch: pitch}); err != nil {
		return err
	}
	c.mu.Lock()
	c.yaw, c.pitch = yaw, pitch
	c.mu.Unlock()
	return nil
}

func (c *Conn) Navigate(dx, dy, dz int) error {
	return c.send(Message{Type: TypeNavigate, DX: dx, DY: dy, DZ: dz})
}

func (c *Conn) Swing() error {
	return c.send(Message{Type: TypeSwing})
}

func (c *Conn) SetControl(ctl remote.Control, on bool) error {
	return c.send(Message{Type: TypeControl, Control: string(ctl), On: on})
}

// send writes m. After the link has ended it does nothing.
func (c *Conn) send(m Message) error {
	if !c.Ready() {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(m); err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("sending %s: %w", m.Type, err)
	}
	return nil
}

// Disconnect closes the link without firing OnTerminated. Safe to call twice.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	werr := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"),
		time.Now().Add(writeTimeout))
	cerr := c.ws.Close()
	c.wg.Wait()

	if werr != nil && !isClosed(werr) {
		return fmt.Errorf("closing websocket: %w", werr)
	}
	if cerr != nil && !isClosed(cerr) {
		return fmt.Errorf("closing websocket: %w", cerr)
	}
	return nil
}

// terminate ends the link because of the remote side or the network.
func (c *Conn) terminate(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.ws.Close()

	c.logger.Info("connection terminated", "reason", reason)
	c.listener.OnTerminated(reason)
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	for {
		var m Message
		if err := c.ws.ReadJSON(&m); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.terminate(fmt.Sprintf("keepalive failed: no response within %s", c.pongWait()))
			} else {
				c.terminate(closeReason(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))

		switch m.Type {
		case TypeHeading, TypeSpawn:
			c.mu.Lock()
			c.yaw, c.pitch = m.Yaw, m.Pitch
			c.mu.Unlock()
		case TypeKick:
			c.terminate("kicked: " + m.Reason)
			return
		case TypeError:
			c.listener.OnError(errors.New(m.Text))
		default:
			c.listener.OnError(fmt.Errorf("unexpected message type %q", m.Type))
		}
	}
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C():
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.terminate("keepalive failed: " + err.Error())
				return
			}
		}
	}
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return strings.TrimSpace(fmt.Sprintf("closed by server: %d %s", ce.Code, ce.Text))
	}
	return "connection lost: " + err.Error()
}

func isClosed(err error) bool {
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}

var _ remote.Conn = (*Conn)(nil)

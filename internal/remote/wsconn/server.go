// ABOUTME: Minimal server side of the websocket protocol for local runs and tests.
// ABOUTME: Accepts logins, echoes headings, logs commands and can kick or drop clients.

package wsconn

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const loginTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server accepts tether clients. The zero value is usable.
type Server struct {
	// KickAfter, when positive, kicks each client that long after login.
	KickAfter time.Duration
	// DropAfter, when positive, cuts each client that long after login.
	DropAfter time.Duration
	// OnCommand, when set, sees every message a logged-in client sends.
	OnCommand func(name string, m Message)
	Logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// client is one logged-in peer. mu serializes data frames to it.
type client struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *client) write(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(m)
}

func (c *client) close(code int, text string) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeTimeout))
	_ = c.ws.Close()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// ServeHTTP upgrades the request and runs the client until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	c := &client{ws: ws}

	var login Message
	_ = ws.SetReadDeadline(time.Now().Add(loginTimeout))
	if err := ws.ReadJSON(&login); err != nil {
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	if login.Type != TypeLogin || login.Name == "" {
		_ = c.write(Message{Type: TypeKick, Reason: "login required"})
		c.close(websocket.ClosePolicyViolation, "login required")
		return
	}
	name := login.Name

	if !s.register(name, c) {
		_ = c.write(Message{Type: TypeKick, Reason: "duplicate login"})
		c.close(websocket.ClosePolicyViolation, "duplicate login")
		return
	}
	defer s.unregister(name, c)

	logger := s.logger().With("client", name)
	logger.Info("=== CLIENT JOINED ===", "remote_addr", r.RemoteAddr)

	if err := c.write(Message{Type: TypeSpawn}); err != nil {
		return
	}

	if s.KickAfter > 0 {
		timer := time.AfterFunc(s.KickAfter, func() { s.Kick(name, "scheduled kick") })
		defer timer.Stop()
	}
	if s.DropAfter > 0 {
		timer := time.AfterFunc(s.DropAfter, func() { s.Drop(name) })
		defer timer.Stop()
	}

	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			code := -1
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			logger.Info("=== CLIENT LEFT ===", "close_code", code)
			return
		}

		logger.Debug("command", "type", m.Type, "yaw", m.Yaw, "pitch", m.Pitch,
			"dx", m.DX, "dy", m.DY, "dz", m.DZ, "control", m.Control, "on", m.On)
		if s.OnCommand != nil {
			s.OnCommand(name, m)
		}

		if m.Type == TypeLook {
			if err := c.write(Message{Type: TypeHeading, Yaw: m.Yaw, Pitch: m.Pitch}); err != nil {
				return
			}
		}
	}
}

func (s *Server) register(name string, c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clients == nil {
		s.clients = make(map[string]*client)
	}
	if _, exists := s.clients[name]; exists {
		return false
	}
	s.clients[name] = c
	return true
}

func (s *Server) unregister(name string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clients[name] == c {
		delete(s.clients, name)
	}
}

func (s *Server) lookup(name string) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[name]
	return c, ok
}

// Kick sends a kick to the named client and closes its connection.
func (s *Server) Kick(name, reason string) bool {
	c, ok := s.lookup(name)
	if !ok {
		return false
	}

	_ = c.write(Message{Type: TypeKick, Reason: reason})
	c.close(websocket.CloseNormalClosure, reason)

	s.logger().Info("kicked client", "client", name, "reason", reason)
	return true
}

// Drop cuts the named client's connection without any goodbye, the way a
// network failure would.
func (s *Server) Drop(name string) bool {
	c, ok := s.lookup(name)
	if !ok {
		return false
	}
	_ = c.ws.Close()

	s.logger().Info("dropped client", "client", name)
	return true
}

// SendError delivers a non-fatal error message to the named client.
func (s *Server) SendError(name, text string) bool {
	c, ok := s.lookup(name)
	if !ok {
		return false
	}
	return c.write(Message{Type: TypeError, Text: text}) == nil
}

// Clients returns the logged-in client names, sorted.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

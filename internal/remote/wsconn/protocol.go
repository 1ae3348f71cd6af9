// ABOUTME: JSON message envelope exchanged over the websocket link.
// ABOUTME: One struct covers every message type; unused fields are omitted.

package wsconn

// Message types sent by the client.
const (
	TypeLogin    = "login"
	TypeLook     = "look"
	TypeNavigate = "navigate"
	TypeSwing    = "swing"
	TypeControl  = "control"
)

// Message types sent by the server.
const (
	TypeSpawn   = "spawn"
	TypeHeading = "heading"
	TypeKick    = "kick"
	TypeError   = "error"
)

// Message is the wire envelope. Type selects which other fields matter.
type Message struct {
	Type string `json:"type"`

	Name string `json:"name,omitempty"`

	Yaw   float64 `json:"yaw,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`

	DX int `json:"dx,omitempty"`
	DY int `json:"dy,omitempty"`
	DZ int `json:"dz,omitempty"`

	Control string `json:"control,omitempty"`
	On      bool   `json:"on,omitempty"`

	// Reason accompanies kick, Text accompanies error.
	Reason string `json:"reason,omitempty"`
	Text   string `json:"message,omitempty"`
}

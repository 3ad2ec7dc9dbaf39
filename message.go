package remote

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
)

// ============================================================================
// Wire constants
// ============================================================================

// Message types.
const (
	TypeRequest   = "request"
	TypeResponse  = "response"
	TypeBroadcast = "broadcast"
)

// Request names handled by the service itself.
const (
	RequestAuthenticate = "authenticate"
	RequestPing         = "ping"
)

// OptionPassword carries the server password in the authenticate request.
const OptionPassword = "password"

// ============================================================================
// Message
// ============================================================================

// Message is the wire format for every frame exchanged with the server.
// ID is the correlation key: a response carries the ID of its request.
type Message struct {
	Name     string         `json:"name"`
	Type     string         `json:"type,omitempty"`
	ID       string         `json:"id"`
	DeviceID string         `json:"device_id,omitempty"`
	Options  map[string]any `json:"options"`
}

// NewRequest creates a request message with a fresh correlation key.
func NewRequest(name string) *Message {
	return &Message{
		Name:    name,
		Type:    TypeRequest,
		ID:      uuid.NewString(),
		Options: make(map[string]any),
	}
}

// With sets an option and returns the message for chaining.
func (m *Message) With(key string, value any) *Message {
	if m.Options == nil {
		m.Options = make(map[string]any)
	}
	m.Options[key] = value
	return m
}

// Option returns the raw option value.
func (m *Message) Option(key string) (any, bool) {
	v, ok := m.Options[key]
	return v, ok
}

// StringOption returns a string option, or def if missing or not a string.
func (m *Message) StringOption(key, def string) string {
	if s, ok := m.Options[key].(string); ok {
		return s
	}
	return def
}

// IntOption returns a numeric option as int64, or def if missing.
// JSON numbers decode as float64 and are truncated.
func (m *Message) IntOption(key string, def int64) int64 {
	switch v := m.Options[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return def
}

// BoolOption returns a boolean option, or def if missing or not a bool.
func (m *Message) BoolOption(key string, def bool) bool {
	if b, ok := m.Options[key].(bool); ok {
		return b
	}
	return def
}

// Encode renders the message as a JSON text frame.
func (m *Message) Encode() (string, error) {
	out := *m
	if out.Options == nil {
		out.Options = map[string]any{}
	}
	data, err := sonnet.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("encode message %q: %w", m.Name, err)
	}
	return string(data), nil
}

// String returns the encoded message, or a short description if encoding fails.
func (m *Message) String() string {
	s, err := m.Encode()
	if err != nil {
		return fmt.Sprintf("%s[%s]", m.Name, m.ID)
	}
	return s
}

// ParseMessage decodes a JSON text frame. Frames without a name are rejected.
func ParseMessage(text string) (*Message, error) {
	var m Message
	if err := sonnet.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("decode message: missing name")
	}
	if m.Options == nil {
		m.Options = make(map[string]any)
	}
	return &m, nil
}

func newAuthenticateRequest(password, deviceID string) *Message {
	m := NewRequest(RequestAuthenticate).With(OptionPassword, password)
	m.DeviceID = deviceID
	return m
}

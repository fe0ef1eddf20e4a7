package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is a frame on the session connection. Every frame carries a type;
// payload and timestamp are optional.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`

	// Raw holds the undecoded inbound frame so subscribers can read
	// top-level fields beyond type/payload/timestamp.
	Raw json.RawMessage `json:"-"`
}

// NewMessage builds a message with payload encoded as JSON. A nil payload
// produces a message without one.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// Stamp sets the timestamp to now unless one is already present.
func (m *Message) Stamp(now time.Time) {
	if m.Timestamp == 0 {
		m.Timestamp = now.UnixMilli()
	}
}

// Handler receives inbound messages of a subscribed type.
type Handler func(msg Message)

// Conn abstracts a session connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() ([]byte, error)
	CloseWithCode(code int, reason string) error
	Close() error
}

// CloseError reports the close frame that ended a connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}

// Close codes with special meaning to the client.
const (
	CloseNormal       = 1000
	CloseAbnormal     = 1006
	CloseAuthGone     = 410
	CloseAuthRejected = 4100
)

// IsAuthClose reports whether code signals an invalid or expired credential.
func IsAuthClose(code int) bool {
	return code == CloseAuthGone || code == CloseAuthRejected
}

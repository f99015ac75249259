package ws

import (
	"encoding/json"
	"time"
)

// Event is the closed set of things broadcast to a room. Each variant
// knows its own wire envelope; there is no stringly-typed dispatch.
type Event interface {
	wire() []byte
}

// MessageEvent carries one persisted chat message.
type MessageEvent struct {
	Content   string
	Username  string
	Timestamp time.Time
}

// PresenceEvent announces a member joining or leaving.
type PresenceEvent struct {
	Username string
	Joined   bool
}

type messageEnvelope struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type presenceEnvelope struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

func (e MessageEvent) wire() []byte {
	b, _ := json.Marshal(messageEnvelope{
		Type:      "message",
		Message:   e.Content,
		Username:  e.Username,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	})
	return b
}

func (e PresenceEvent) wire() []byte {
	typ := "user_leave"
	if e.Joined {
		typ = "user_join"
	}
	b, _ := json.Marshal(presenceEnvelope{Type: typ, Username: e.Username})
	return b
}

// inbound is the client -> server message envelope.
type inbound struct {
	Message string `json:"message"`
}

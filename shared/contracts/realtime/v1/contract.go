// Package v1 defines the justice live-update protocol v1 spoken over /ws.
//
// Every frame is a JSON Envelope. The server pushes "chat" and "message"
// frames whose payloads are the same JSON documents the SSE stream carries
// in its data lines. Clients may send "hello" and "ping"; nothing else.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol must be offered by clients during the WebSocket handshake.
const Subprotocol = "justice.events.v1"

// Type constants (wire-stable).
const (
	// TypeHello is an optional client greeting.
	TypeHello = "hello"
	// TypeHelloAck answers hello with the subscription identity.
	TypeHelloAck = "hello_ack"

	// TypePing is an application-level keepalive from the client.
	TypePing = "ping"
	// TypePong answers ping.
	TypePong = "pong"

	// TypeChat carries a chat created or removed event.
	TypeChat = "chat"
	// TypeMessage carries a new message event.
	TypeMessage = "message"

	// TypeError reports a rejected client frame.
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello, TypeHelloAck, TypePing, TypePong, TypeChat, TypeMessage, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ClientSendable reports whether clients may send frames of type t.
func ClientSendable(t string) bool {
	return t == TypeHello || t == TypePing
}

// HelloAckPayload identifies the server-side subscription.
type HelloAckPayload struct {
	SubscriptionID string `json:"subscription_id"`
	UserID         int64  `json:"user_id"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

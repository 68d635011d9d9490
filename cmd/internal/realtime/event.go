package realtime

import (
	"encoding/json"
	"fmt"
)

// Kind names an event on the wire (SSE "event:" field, WS envelope type).
type Kind string

const (
	KindChat    Kind = "chat"
	KindMessage Kind = "message"
)

// Event is an immutable, already-encoded notification.
type Event struct {
	Kind Kind
	Data json.RawMessage
}

// NewEvent encodes payload once so every subscriber shares the same bytes.
func NewEvent(kind Kind, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: encode %s event: %w", kind, err)
	}
	return Event{Kind: kind, Data: b}, nil
}

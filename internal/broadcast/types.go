package broadcast

import (
	"encoding/json"
	"errors"
)

// ErrBackpressure is returned by an observer whose outbound queue is full.
var ErrBackpressure = errors.New("broadcast: observer queue full")

// Event is a typed state change. It is encoded as a flat JSON envelope
// `{"type": ..., <payload fields>}`.
type Event struct {
	Type    string
	Payload map[string]any
}

// NewEvent builds an event from alternating key/value pairs.
func NewEvent(eventType string, kv ...any) Event {
	payload := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		payload[key] = kv[i+1]
	}
	return Event{Type: eventType, Payload: payload}
}

// MarshalJSON flattens the payload next to the type discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["type"] = e.Type
	return json.Marshal(out)
}

// Observer receives encoded events. Deliver must not block.
type Observer interface {
	ID() string
	Ready() bool
	Deliver(payload []byte) error
}

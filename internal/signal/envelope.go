package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EventType discriminates envelopes on the participant<->service channel.
type EventType string

const (
	// Client -> service.
	EventCreate  EventType = "create"
	EventJoin    EventType = "join"
	EventMessage EventType = "message"
	EventEnd     EventType = "end"

	// Service -> client.
	EventReady EventType = "ready"
	EventFull  EventType = "full"
	EventEmpty EventType = "empty"
)

// Envelope is the frame exchanged over the rendezvous WebSocket.
//
// Payload is kept as raw JSON on purpose: the service relays it
// structure-for-structure without interpretation.
type Envelope struct {
	Type    EventType       `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseEnvelope decodes and validates a client->service envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("unexpected trailing data")
	}
	if err := env.validateClient(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) validateClient() error {
	switch e.Type {
	case EventCreate, EventJoin:
		if e.Room == "" {
			return fmt.Errorf("%s envelope missing room", e.Type)
		}
		if len(e.Payload) != 0 {
			return fmt.Errorf("%s envelope has unexpected payload", e.Type)
		}
	case EventMessage:
		if len(e.Payload) == 0 {
			return fmt.Errorf("message envelope missing payload")
		}
		if e.Room != "" {
			return fmt.Errorf("message envelope must not carry a room")
		}
	case EventEnd:
		if e.Room != "" || len(e.Payload) != 0 {
			return fmt.Errorf("end envelope has unexpected fields")
		}
	case EventReady, EventFull, EventEmpty:
		return fmt.Errorf("envelope type %q is service-to-client only", e.Type)
	default:
		return fmt.Errorf("unsupported envelope type %q", e.Type)
	}
	return nil
}

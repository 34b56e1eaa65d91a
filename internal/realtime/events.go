// Package realtime owns the live channel between a discussion thread and the
// push backend: inbound event decoding, the reconnecting connector state
// machine, and the concrete event sources (SSE, Redis pub/sub).
package realtime

import (
	"encoding/json"
	"fmt"

	"gigboard/internal/model"
)

// Event types on the wire. Anything else decodes to UnknownEvent and is
// ignored, so newer servers can add types without breaking older clients.
const (
	EventTypeConnected = "connected"
	EventTypeSnapshot  = "snapshot"
	EventTypeBroadcast = "broadcast"
)

// Event is the closed union of inbound channel events. The connector
// switches over the concrete types.
type Event interface {
	isEvent()
}

// ConnectedEvent signals the channel is established server-side.
type ConnectedEvent struct {
	ThreadID string
}

// SnapshotEvent carries a full authoritative comment list for the thread.
type SnapshotEvent struct {
	Snapshot model.Snapshot
}

// BroadcastEvent carries an auxiliary server announcement. The engine does
// not act on these today but they are decoded, not dropped as malformed.
type BroadcastEvent struct {
	Kind string
	Data json.RawMessage
}

// UnknownEvent is any event type this client does not understand.
type UnknownEvent struct {
	Type string
}

func (ConnectedEvent) isEvent() {}
func (SnapshotEvent) isEvent()  {}
func (BroadcastEvent) isEvent() {}
func (UnknownEvent) isEvent()   {}

// wireEvent is the {type, data} envelope both transports use.
type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseEvent decodes one wire event. A recognized type with a malformed
// payload is an error (the caller drops and logs it, keeping the channel
// open); an unrecognized type is UnknownEvent, never an error.
func ParseEvent(eventType string, data []byte) (Event, error) {
	switch eventType {
	case EventTypeConnected:
		var payload struct {
			ThreadID string `json:"thread_id"`
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				return nil, fmt.Errorf("decode connected event: %w", err)
			}
		}
		return ConnectedEvent{ThreadID: payload.ThreadID}, nil

	case EventTypeSnapshot:
		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot event: %w", err)
		}
		return SnapshotEvent{Snapshot: snap}, nil

	case EventTypeBroadcast:
		var payload struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode broadcast event: %w", err)
		}
		return BroadcastEvent{Kind: payload.Kind, Data: payload.Data}, nil

	default:
		return UnknownEvent{Type: eventType}, nil
	}
}

// ParseEnvelope decodes a {type, data} JSON envelope (the pub/sub payload
// format) and then the inner event.
func ParseEnvelope(raw []byte) (Event, error) {
	var env wireEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	return ParseEvent(env.Type, env.Data)
}

// EncodeEnvelope builds the {type, data} JSON envelope the server publishes.
func EncodeEnvelope(eventType string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal event data: %w", err)
		}
		raw = b
	}
	return json.Marshal(wireEvent{Type: eventType, Data: raw})
}

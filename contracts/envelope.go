package contracts

import (
	"encoding/json"
	"time"
)

// Envelope is the tagged wrapper around every message crossing the
// transport boundary. Envelopes are immutable after construction and exist
// only for the duration of transit; they have no independent persistence.
//
// Wire shape: {"type": <tag>, "payload": <object|null>,
// "timestamp": <RFC 3339>, "sessionId": <string|null>}.
type Envelope struct {
	// Type is the closed-vocabulary tag. Inbound tags outside the
	// vocabulary decode as TypeUnrecognized.
	Type MessageType
	// RawType preserves the original wire tag. Populated on decode; on
	// locally constructed envelopes it may be empty.
	RawType string
	// Payload is an optional mapping of schema-free values.
	Payload map[string]Value
	// Timestamp defaults to construction time.
	Timestamp time.Time
	// SessionID correlates the envelope with a logical session or an
	// in-flight command. Optional.
	SessionID string
}

// NewEnvelope constructs an envelope stamped with the current time.
func NewEnvelope(t MessageType, payload map[string]Value) *Envelope {
	return &Envelope{
		Type:      t,
		RawType:   string(t),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionEnvelope constructs an envelope carrying a session identifier.
func NewSessionEnvelope(t MessageType, sessionID string, payload map[string]Value) *Envelope {
	e := NewEnvelope(t, payload)
	e.SessionID = sessionID
	return e
}

// wireEnvelope is the JSON projection of Envelope.
type wireEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	tag := string(e.Type)
	if e.Type == TypeUnrecognized && e.RawType != "" {
		tag = e.RawType
	}

	payload := json.RawMessage("null")
	if e.Payload != nil {
		enc, err := Encode(Mapping(e.Payload))
		if err != nil {
			return nil, err
		}
		payload = enc
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return json.Marshal(wireEnvelope{
		Type:      tag,
		Payload:   payload,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		SessionID: e.SessionID,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Unknown type tags are surfaced
// as TypeUnrecognized, never as an error; a malformed frame or a payload
// that is not a mapping yields a *DecodeError.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return &DecodeError{Reason: "invalid envelope", Err: err}
	}
	if wire.Type == "" {
		return &DecodeError{Reason: "missing type tag"}
	}

	t, known := ParseMessageType(wire.Type)
	if !known {
		t = TypeUnrecognized
	}

	var payload map[string]Value
	if len(wire.Payload) > 0 && string(wire.Payload) != "null" {
		v, err := Decode(wire.Payload)
		if err != nil {
			return err
		}
		if v.Kind() != KindMapping {
			return &DecodeError{Reason: "payload must be a mapping, got " + v.Kind().String()}
		}
		payload = v.Fields()
	}

	ts := time.Now().UTC()
	if wire.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
		if err != nil {
			return &DecodeError{Reason: "invalid timestamp", Err: err}
		}
		ts = parsed
	}

	*e = Envelope{
		Type:      t,
		RawType:   wire.Type,
		Payload:   payload,
		Timestamp: ts,
		SessionID: wire.SessionID,
	}
	return nil
}

// DecodeEnvelope parses a single inbound frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := e.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &e, nil
}

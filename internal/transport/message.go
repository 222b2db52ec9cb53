package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampFormat is the ISO8601 UTC layout of the envelope "ts" field.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Kind identifies what a message carries.
type Kind string

// Message kinds.
const (
	KindConfig      Kind = "config"
	KindData        Kind = "data"
	KindDiagnostics Kind = "diagnostics"
)

// Valid reports whether k is one of the three publishable kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindConfig, KindData, KindDiagnostics:
		return true
	default:
		return false
	}
}

// Message is one outbound publish.
//
// Payload is a []device.ConfigEntry for config messages and a
// map[string]any for data and diagnostics. Spooled messages replay their
// payload as json.RawMessage.
type Message struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// envelope is the wire format shared by both transports.
type envelope struct {
	TS      string `json:"ts"`
	Payload any    `json:"payload"`
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Envelope encodes m as {"ts": ..., "payload": ...}.
func (m Message) Envelope() ([]byte, error) {
	b, err := json.Marshal(envelope{
		TS:      FormatTimestamp(m.Timestamp),
		Payload: m.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", m.Kind, err)
	}
	return b, nil
}

// PayloadJSON encodes the bare payload.
func (m Message) PayloadJSON() ([]byte, error) {
	b, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", m.Kind, err)
	}
	return b, nil
}

// decodeCommand parses one command object. Numbers decode as float64.
func decodeCommand(payload []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidCommand, raw)
	}
	return cmd, nil
}

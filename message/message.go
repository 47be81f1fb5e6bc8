// Package message defines the normalized message model shared by all
// protocol handlers and the message store.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/htier-pubsub/HtierDemoApp/pkg/timestamp"
)

// Protocol tags the acquisition strategy that produced a message.
type Protocol string

// Known protocol tags.
const (
	ProtocolMQTT     Protocol = "mqtt"
	ProtocolHTTP     Protocol = "http"
	ProtocolRegister Protocol = "modbus"
	ProtocolVideo    Protocol = "video"
)

// Valid reports whether p is one of the known protocol tags.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolMQTT, ProtocolHTTP, ProtocolRegister, ProtocolVideo:
		return true
	}
	return false
}

// Message is the unit handed from an acquisition handler to the store.
// Seq is assigned by the store at append time and is strictly increasing
// within a store generation. The payload is opaque to the store and
// immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Protocol  Protocol  `json:"protocol"`
	Source    string    `json:"source,omitempty"`
	Payload   Payload   `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Option customizes a new message.
type Option func(*Message)

// WithTime overrides the acquisition timestamp.
func WithTime(t time.Time) Option {
	return func(m *Message) { m.Timestamp = t }
}

// WithSource records where the data came from (broker address, relay URL,
// device endpoint, stream source).
func WithSource(source string) Option {
	return func(m *Message) { m.Source = source }
}

// New creates a message with a fresh ID and the current wire-precision time.
// Seq stays zero until the store assigns it.
func New(protocol Protocol, payload Payload, opts ...Option) Message {
	m := Message{
		ID:        uuid.New().String(),
		Protocol:  protocol,
		Payload:   payload,
		Timestamp: timestamp.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Validate checks the message is well formed before it enters the store.
func (m Message) Validate() error {
	if !m.Protocol.Valid() {
		return fmt.Errorf("unknown protocol tag %q", m.Protocol)
	}
	if m.Payload == nil {
		return fmt.Errorf("nil payload")
	}
	return nil
}

// wireFormat is the JSON projection of a message. The payload kind tag
// selects the concrete payload type on decode.
type wireFormat struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Protocol  Protocol        `json:"protocol"`
	Source    string          `json:"source,omitempty"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("message %s: nil payload", m.ID)
	}
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("message %s: marshal payload: %w", m.ID, err)
	}
	return json.Marshal(wireFormat{
		ID:        m.ID,
		Seq:       m.Seq,
		Protocol:  m.Protocol,
		Source:    m.Source,
		Kind:      m.Payload.Kind(),
		Payload:   raw,
		Timestamp: m.Timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireFormat
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	payload, err := decodePayload(wire.Kind, wire.Payload)
	if err != nil {
		return fmt.Errorf("message %s: %w", wire.ID, err)
	}

	m.ID = wire.ID
	m.Seq = wire.Seq
	m.Protocol = wire.Protocol
	m.Source = wire.Source
	m.Payload = payload
	m.Timestamp = wire.Timestamp
	return nil
}

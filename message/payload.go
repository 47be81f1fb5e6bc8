package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/bridge"
	"github.com/htier-pubsub/HtierDemoApp/pkg/timestamp"
)

// Kind identifies the concrete payload type on the wire.
type Kind string

// Payload kinds form a closed set: raw broker text, a decoded register
// snapshot, or a lightweight frame descriptor.
const (
	KindText      Kind = "text"
	KindRegisters Kind = "registers"
	KindFrame     Kind = "frame"
)

// Payload is the opaque content of a message. The store never inspects it;
// the reader renders it via Summary.
type Payload interface {
	Kind() Kind
	Summary() string
}

// TextPayload carries a raw broker message verbatim.
type TextPayload struct {
	Text string `json:"text"`
}

// Kind implements Payload.
func (TextPayload) Kind() Kind { return KindText }

// Summary implements Payload.
func (p TextPayload) Summary() string { return p.Text }

// SnapshotPayload carries a decoded industrial register snapshot, the
// common shape shared by the HTTP poll and direct register poll handlers.
type SnapshotPayload struct {
	Snapshot bridge.RegisterSnapshot `json:"snapshot"`
}

// Kind implements Payload.
func (SnapshotPayload) Kind() Kind { return KindRegisters }

// Summary implements Payload.
func (p SnapshotPayload) Summary() string {
	return fmt.Sprintf("%d registers @ %s",
		len(p.Snapshot.Values), timestamp.Format(p.Snapshot.Timestamp))
}

// FramePayload describes a processed video frame. Pixel data is handed to
// the rendering collaborator directly and never stored.
type FramePayload struct {
	FrameIndex int64     `json:"frame_index"`
	CapturedAt time.Time `json:"captured_at"`
	Note       string    `json:"note,omitempty"`
}

// Kind implements Payload.
func (FramePayload) Kind() Kind { return KindFrame }

// Summary implements Payload.
func (p FramePayload) Summary() string {
	if p.Note != "" {
		return p.Note
	}
	return fmt.Sprintf("frame %d processed", p.FrameIndex)
}

// decodePayload selects the concrete payload type for a wire kind tag.
func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindText:
		var p TextPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode text payload: %w", err)
		}
		return p, nil
	case KindRegisters:
		var p SnapshotPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode register payload: %w", err)
		}
		return p, nil
	case KindFrame:
		var p FramePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode frame payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

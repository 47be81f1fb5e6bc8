// Package bridge implements the compact text encoding used to relay
// industrial register snapshots through the external key-value relay, plus
// the HTTP client for that relay's contract.
package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/pkg/timestamp"
)

// separator splits the bracketed value list from the timestamp. The input
// must contain it exactly once.
const separator = "]_"

// RegisterSnapshot is a decoded industrial register reading: an ordered
// sequence of register values (non-negative 16-bit range by convention)
// plus a second-precision timestamp.
type RegisterSnapshot struct {
	Values    []uint16  `json:"values"`
	Timestamp time.Time `json:"timestamp"`
}

// Equal reports value equality between two snapshots.
func (s RegisterSnapshot) Equal(other RegisterSnapshot) bool {
	if len(s.Values) != len(other.Values) {
		return false
	}
	for i, v := range s.Values {
		if other.Values[i] != v {
			return false
		}
	}
	return s.Timestamp.Equal(other.Timestamp)
}

// DecodeError reports a malformed wire payload. Callers treat it as
// ignorable noise, not a fatal protocol violation.
type DecodeError struct {
	Reason string
	Raw    string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("bridge decode: %s in %q", e.Reason, e.Raw)
}

// Encode renders a snapshot in the bridge wire format:
//
//	[v1, v2, ..., vn]_YYYY-MM-DD HH:MM:SS
//
// The value list is bracketed and comma-space separated; the timestamp is
// 24-hour, second precision, no timezone. No surrounding whitespace is
// ever emitted.
func Encode(s RegisterSnapshot) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range s.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	b.WriteString(separator)
	b.WriteString(s.Timestamp.Format(timestamp.WireLayout))
	return b.String()
}

// Decode parses the bridge wire format. It succeeds only when both halves
// parse: every list element must be an integer in register range and the
// timestamp must match the wire layout exactly.
func Decode(text string) (RegisterSnapshot, error) {
	if strings.Count(text, separator) != 1 {
		return RegisterSnapshot{}, &DecodeError{
			Reason: "expected exactly one ]_ separator",
			Raw:    text,
		}
	}

	idx := strings.Index(text, separator)
	listPart, timePart := text[:idx], text[idx+len(separator):]

	if !strings.HasPrefix(listPart, "[") {
		return RegisterSnapshot{}, &DecodeError{
			Reason: "value list missing opening bracket",
			Raw:    text,
		}
	}
	inner := listPart[1:]

	var values []uint16
	if inner != "" {
		for _, field := range strings.Split(inner, ",") {
			v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 16)
			if err != nil {
				return RegisterSnapshot{}, &DecodeError{
					Reason: fmt.Sprintf("register value %q is not a 16-bit integer", strings.TrimSpace(field)),
					Raw:    text,
				}
			}
			values = append(values, uint16(v))
		}
	}

	ts, err := timestamp.Parse(timePart)
	if err != nil {
		return RegisterSnapshot{}, &DecodeError{
			Reason: fmt.Sprintf("timestamp %q does not match %s", timePart, timestamp.WireLayout),
			Raw:    text,
		}
	}

	return RegisterSnapshot{Values: values, Timestamp: ts}, nil
}

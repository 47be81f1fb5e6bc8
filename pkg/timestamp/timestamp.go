// Package timestamp provides wall-clock helpers for the bridge wire format.
//
// The bridge relays industrial register snapshots with a second-precision,
// timezone-free timestamp (`YYYY-MM-DD HH:MM:SS`). Every component that
// touches that clock goes through this package so the precision and layout
// stay consistent.
//
// Zero Value Semantics:
//   - A zero time.Time formats to the empty string
//   - Parse of the empty string returns the zero time and an error
package timestamp

import (
	"fmt"
	"time"
)

// WireLayout is the bridge wire clock layout: 24-hour, second precision,
// no timezone.
const WireLayout = "2006-01-02 15:04:05"

// Now returns the current time truncated to wire precision.
func Now() time.Time {
	return Truncate(time.Now())
}

// Truncate drops sub-second precision and the monotonic clock reading so
// the result round-trips exactly through the wire layout.
func Truncate(t time.Time) time.Time {
	return t.Round(0).Truncate(time.Second)
}

// Format renders a time in the wire layout. Zero times format to "".
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(WireLayout)
}

// Parse reads a wire-layout timestamp. The match is exact: any deviation
// from the layout (missing seconds, timezone suffix, 12-hour clock) fails.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(WireLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: parse %q: %w", s, err)
	}
	return t, nil
}

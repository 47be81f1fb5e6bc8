package testutil

import (
	"time"

	"github.com/htier-pubsub/HtierDemoApp/bridge"
)

// Snapshot builds a register snapshot with a fixed wire-precision timestamp.
func Snapshot(values ...uint16) bridge.RegisterSnapshot {
	return bridge.RegisterSnapshot{
		Values:    values,
		Timestamp: time.Date(2025, 10, 5, 14, 30, 22, 0, time.UTC),
	}
}

// WirePayload encodes a snapshot of the given values in the bridge wire
// format.
func WirePayload(values ...uint16) string {
	return bridge.Encode(Snapshot(values...))
}

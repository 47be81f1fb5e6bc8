// Package handler defines the uniform connection-lifecycle contract shared
// by the four acquisition strategies, and the connection-state machine they
// report through.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/message"
)

// State enumerates the connection lifecycle.
type State int

// Connection states. Subscribed is only reachable from Connected, and only
// for the subscribe-driven handler.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateError
)

// String returns the display name of a state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its display name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Status is a state plus an optional human-readable reason. The reader
// only ever sees this, never raw errors.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Handler is the capability contract every acquisition strategy
// implements. Start launches the acquisition task and returns quickly;
// config errors surface synchronously from Start before any task begins.
// Stop is cooperative and bounded by the timeout. Status may be called
// concurrently with either.
type Handler interface {
	Protocol() message.Protocol
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Status() Status
}

// StateTracker is the mutex-guarded status cell shared by a handler's
// acquisition goroutine and its Status callers.
type StateTracker struct {
	mu     sync.RWMutex
	status Status
	logger *slog.Logger
}

// NewStateTracker creates a tracker starting in Disconnected.
func NewStateTracker(logger *slog.Logger) *StateTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateTracker{
		status: Status{State: StateDisconnected},
		logger: logger,
	}
}

// Set transitions to a non-error state, clearing any prior reason.
func (t *StateTracker) Set(state State) {
	t.mu.Lock()
	from := t.status.State
	t.status = Status{State: state}
	t.mu.Unlock()

	if from != state {
		t.logger.Info("connection state changed", "from", from.String(), "to", state.String())
	}
}

// SetError transitions to Error with a reason for the reader.
func (t *StateTracker) SetError(reason string) {
	t.mu.Lock()
	from := t.status.State
	t.status = Status{State: StateError, Reason: reason}
	t.mu.Unlock()

	t.logger.Warn("connection state changed", "from", from.String(), "to", "error", "reason", reason)
}

// SetSubscribed transitions Connected to Subscribed. Any other origin
// state violates the lifecycle invariant and is rejected.
func (t *StateTracker) SetSubscribed() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.State != StateConnected {
		return fmt.Errorf("subscribed is only reachable from connected, not %s", t.status.State)
	}
	t.status = Status{State: StateSubscribed}
	t.logger.Info("connection state changed", "from", "connected", "to", "subscribed")
	return nil
}

// Get returns the current status.
func (t *StateTracker) Get() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Package httppoll implements the poll-driven HTTP acquisition handler:
// fixed-interval fetches of the bridge wire payload from the external
// key-value relay.
package httppoll

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/bridge"
	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/store"
)

// Deps holds runtime dependencies for the HTTP poll handler.
type Deps struct {
	Config config.HTTPPollConfig
	Store  *store.Store
	Logger *slog.Logger
}

// Handler polls the relay on a fixed interval and appends each decoded
// register snapshot. Polling is self-healing: failures flip the state to
// Error but never stop the loop, since the interval already throttles
// retries.
type Handler struct {
	config config.HTTPPollConfig
	store  *store.Store
	logger *slog.Logger
	relay  *bridge.RelayClient
	state  *handler.StateTracker

	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	lastBody string

	polls          atomic.Int64
	decodeFailures atomic.Int64
}

var _ handler.Handler = (*Handler)(nil)

// New creates an HTTP poll handler. Configuration problems surface here.
func New(deps Deps) (*Handler, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "HttpPollHandler", "New", "store dependency")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "httppoll-handler", "relay", deps.Config.BaseURL())
	}

	return &Handler{
		config: deps.Config,
		store:  deps.Store,
		logger: logger,
		relay:  bridge.NewRelayClient(deps.Config.BaseURL(), deps.Config.Timeout()),
		state:  handler.NewStateTracker(logger),
	}, nil
}

// Protocol implements handler.Handler.
func (h *Handler) Protocol() message.Protocol { return message.ProtocolHTTP }

// Status implements handler.Handler.
func (h *Handler) Status() handler.Status { return h.state.Get() }

// Relay exposes the underlying relay client (outbound bridge writes, crypto).
func (h *Handler) Relay() *bridge.RelayClient { return h.relay }

// Start health-checks the relay and launches the polling loop. A failed
// health check leaves the handler in Error but the loop still runs: the
// relay coming back is picked up on a later tick.
func (h *Handler) Start(ctx context.Context) error {
	if h.running.Load() {
		return errors.WrapConfig(errors.ErrAlreadyStarted, "HttpPollHandler", "Start", "lifecycle check")
	}

	h.state.Set(handler.StateConnecting)

	if err := h.relay.Health(ctx); err != nil {
		h.state.SetError(fmt.Sprintf("relay health check failed: %v", err))
		h.logger.Warn("relay unreachable at start, polling anyway", "error", err)
	} else {
		h.state.Set(handler.StateConnected)
	}

	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(h.done)
		h.pollLoop(ctx)
	}()

	return nil
}

// Stop halts the polling loop, waiting up to timeout for it to exit.
func (h *Handler) Stop(timeout time.Duration) error {
	if !h.running.Swap(false) {
		h.state.Set(handler.StateDisconnected)
		return nil
	}

	close(h.shutdown)
	select {
	case <-h.done:
	case <-time.After(timeout):
		h.state.Set(handler.StateDisconnected)
		return errors.WrapConcurrency(
			fmt.Errorf("poll loop did not exit within %s", timeout),
			"HttpPollHandler", "Stop", "loop shutdown")
	}

	h.state.Set(handler.StateDisconnected)
	h.logger.Info("polling stopped", "polls", h.polls.Load(), "decode_failures", h.decodeFailures.Load())
	return nil
}

// Polls reports how many relay fetches have been attempted.
func (h *Handler) Polls() int64 { return h.polls.Load() }

// DecodeFailures reports how many fetched payloads failed to decode.
func (h *Handler) DecodeFailures() int64 { return h.decodeFailures.Load() }

func (h *Handler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(h.config.PollInterval())
	defer ticker.Stop()

	// First sample immediately; the ticker covers the rest.
	h.poll(ctx)

	for {
		select {
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll(ctx)
		}
	}
}

// poll fetches one sample. Transport failures flip to Error and wait for
// the next tick; decode failures are logged and skipped without touching
// the connection state.
func (h *Handler) poll(ctx context.Context) {
	h.polls.Add(1)

	body, err := h.relay.Get(ctx, h.config.Key)
	if err != nil {
		h.state.SetError(fmt.Sprintf("relay poll failed: %v", err))
		h.logger.Warn("poll failed", "key", h.config.Key, "error", err)
		return
	}

	if h.state.Get().State != handler.StateConnected {
		h.state.Set(handler.StateConnected)
	}

	h.mu.Lock()
	duplicate := body == h.lastBody
	if !duplicate {
		h.lastBody = body
	}
	h.mu.Unlock()
	if duplicate {
		return
	}

	snapshot, err := bridge.Decode(body)
	if err != nil {
		h.decodeFailures.Add(1)
		var decodeErr *bridge.DecodeError
		if stderrors.As(err, &decodeErr) {
			h.logger.Warn("skipping undecodable payload", "reason", decodeErr.Reason, "raw", decodeErr.Raw)
		} else {
			h.logger.Warn("skipping undecodable payload", "error", err)
		}
		return
	}

	msg := message.New(
		message.ProtocolHTTP,
		message.SnapshotPayload{Snapshot: snapshot},
		message.WithSource(h.config.BaseURL()),
		message.WithTime(snapshot.Timestamp),
	)
	if _, err := h.store.Append(msg); err != nil {
		h.logger.Error("store append failed", "error", err)
	}
}

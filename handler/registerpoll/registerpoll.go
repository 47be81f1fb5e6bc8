// Package registerpoll implements the poll-driven industrial acquisition
// handler: fixed-interval holding-register reads over Modbus TCP.
package registerpoll

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"

	"github.com/htier-pubsub/HtierDemoApp/bridge"
	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/pkg/retry"
	"github.com/htier-pubsub/HtierDemoApp/pkg/timestamp"
	"github.com/htier-pubsub/HtierDemoApp/store"
)

// RegisterReader is the device-read capability the handler polls through.
// The production implementation is a Modbus TCP client; tests substitute
// a fake.
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) (results []byte, err error)
}

// Deps holds runtime dependencies for the register poll handler.
type Deps struct {
	Config config.RegisterPollConfig
	Store  *store.Store
	Logger *slog.Logger

	// Reader overrides the Modbus TCP client when set.
	Reader RegisterReader
}

// Handler reads N holding registers on a fixed interval and appends each
// changed reading as a register snapshot. The device has no clock of its
// own, so timestamps are assigned locally at read time.
type Handler struct {
	config config.RegisterPollConfig
	store  *store.Store
	logger *slog.Logger
	state  *handler.StateTracker

	reader     RegisterReader
	tcpHandler *modbus.TCPClientHandler

	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	lastValues []uint16

	reads atomic.Int64
}

var _ handler.Handler = (*Handler)(nil)

// New creates a register poll handler. Configuration problems surface here.
func New(deps Deps) (*Handler, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "RegisterPollHandler", "New", "store dependency")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "registerpoll-handler", "device", deps.Config.Address())
	}

	return &Handler{
		config: deps.Config,
		store:  deps.Store,
		logger: logger,
		state:  handler.NewStateTracker(logger),
		reader: deps.Reader,
	}, nil
}

// Protocol implements handler.Handler.
func (h *Handler) Protocol() message.Protocol { return message.ProtocolRegister }

// Status implements handler.Handler.
func (h *Handler) Status() handler.Status { return h.state.Get() }

// Start connects to the device with bounded attempts, then launches the
// polling loop. Unlike the relay poller, a device that cannot be reached
// at all fails Start; the caller must re-issue it.
func (h *Handler) Start(ctx context.Context) error {
	if h.running.Load() {
		return errors.WrapConfig(errors.ErrAlreadyStarted, "RegisterPollHandler", "Start", "lifecycle check")
	}

	h.state.Set(handler.StateConnecting)

	if h.reader == nil {
		tcpHandler := modbus.NewTCPClientHandler(h.config.Address())
		tcpHandler.Timeout = h.config.Timeout()
		tcpHandler.SlaveId = h.config.UnitID

		connect := func() error {
			if err := tcpHandler.Connect(); err != nil {
				return errors.WrapConnection(err, "RegisterPollHandler", "Start", "device connect")
			}
			return nil
		}
		if err := retry.Do(ctx, retry.Connect(), connect); err != nil {
			h.state.SetError(fmt.Sprintf("device connect failed: %v", err))
			return err
		}

		h.tcpHandler = tcpHandler
		h.reader = modbus.NewClient(tcpHandler)
	}

	h.state.Set(handler.StateConnected)
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

// Stop halts the polling loop and closes the device connection.
func (h *Handler) Stop(timeout time.Duration) error {
	if !h.running.Swap(false) {
		h.state.Set(handler.StateDisconnected)
		return nil
	}

	close(h.shutdown)
	select {
	case <-h.done:
	case <-time.After(timeout):
		h.closeDevice()
		h.state.Set(handler.StateDisconnected)
		return errors.WrapConcurrency(
			fmt.Errorf("poll loop did not exit within %s", timeout),
			"RegisterPollHandler", "Stop", "loop shutdown")
	}

	h.closeDevice()
	h.state.Set(handler.StateDisconnected)
	h.logger.Info("polling stopped", "reads", h.reads.Load())
	return nil
}

// Reads reports how many register reads have been attempted.
func (h *Handler) Reads() int64 { return h.reads.Load() }

func (h *Handler) closeDevice() {
	if h.tcpHandler != nil {
		_ = h.tcpHandler.Close()
		h.tcpHandler = nil
	}
}

func (h *Handler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(h.config.PollInterval())
	defer ticker.Stop()

	h.poll()

	for {
		select {
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll()
		}
	}
}

// poll reads one register block. A failed read flips to Error and is
// retried on the next tick; an unchanged block is not re-appended.
func (h *Handler) poll() {
	h.reads.Add(1)

	raw, err := h.reader.ReadHoldingRegisters(h.config.StartAddress, h.config.RegisterCount)
	if err != nil {
		h.state.SetError(fmt.Sprintf("register read failed: %v", err))
		h.logger.Warn("read failed", "start", h.config.StartAddress, "count", h.config.RegisterCount, "error", err)
		return
	}
	if len(raw) < int(h.config.RegisterCount)*2 {
		h.state.SetError(fmt.Sprintf("short register read: %d bytes for %d registers", len(raw), h.config.RegisterCount))
		return
	}

	if h.state.Get().State != handler.StateConnected {
		h.state.Set(handler.StateConnected)
	}

	values := make([]uint16, h.config.RegisterCount)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(raw[2*i:])
	}

	h.mu.Lock()
	unchanged := equalValues(values, h.lastValues)
	if !unchanged {
		h.lastValues = values
	}
	h.mu.Unlock()
	if unchanged {
		return
	}

	snapshot := bridge.RegisterSnapshot{
		Values:    values,
		Timestamp: timestamp.Now(),
	}
	msg := message.New(
		message.ProtocolRegister,
		message.SnapshotPayload{Snapshot: snapshot},
		message.WithSource(h.config.Address()),
		message.WithTime(snapshot.Timestamp),
	)
	if _, err := h.store.Append(msg); err != nil {
		h.logger.Error("store append failed", "error", err)
	}
}

func equalValues(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}

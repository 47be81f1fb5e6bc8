package video

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/store"
)

// Deps holds runtime dependencies for the video handler.
type Deps struct {
	Config config.VideoConfig
	Store  *store.Store
	Logger *slog.Logger

	// Source overrides the kind-selected frame source when set.
	Source FrameSource
	// Sink receives every captured frame; nil means frames are discarded.
	Sink FrameSink
}

// Handler captures frames continuously, forwards every frame to the sink,
// and appends a descriptor for every Nth frame plus activation markers at
// the stream boundaries. A source that cannot be opened fails Start and is
// not retried; the stream ending mid-run flips to Error and stays there.
type Handler struct {
	config config.VideoConfig
	store  *store.Store
	logger *slog.Logger
	state  *handler.StateTracker
	source FrameSource
	sink   FrameSink

	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	frames      atomic.Int64
	descriptors atomic.Int64
}

var _ handler.Handler = (*Handler)(nil)

// New creates a video handler. Configuration problems surface here.
func New(deps Deps) (*Handler, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "VideoIngestHandler", "New", "store dependency")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "video-handler",
			"kind", string(deps.Config.Kind), "source", deps.Config.Source)
	}

	source := deps.Source
	if source == nil {
		var err error
		source, err = newSource(deps.Config)
		if err != nil {
			return nil, err
		}
	}

	sink := deps.Sink
	if sink == nil {
		sink = discardSink{}
	}

	return &Handler{
		config: deps.Config,
		store:  deps.Store,
		logger: logger,
		state:  handler.NewStateTracker(logger),
		source: source,
		sink:   sink,
	}, nil
}

// Protocol implements handler.Handler.
func (h *Handler) Protocol() message.Protocol { return message.ProtocolVideo }

// Status implements handler.Handler.
func (h *Handler) Status() handler.Status { return h.state.Get() }

// Frames reports how many frames have been captured.
func (h *Handler) Frames() int64 { return h.frames.Load() }

// Descriptors reports how many frame descriptors have been appended.
func (h *Handler) Descriptors() int64 { return h.descriptors.Load() }

// Start opens the frame source and launches the capture loop. An open
// failure is terminal: the handler stays in Error and the caller decides
// whether to re-issue Start.
func (h *Handler) Start(ctx context.Context) error {
	if h.running.Load() {
		return errors.WrapConfig(errors.ErrAlreadyStarted, "VideoIngestHandler", "Start", "lifecycle check")
	}

	h.state.Set(handler.StateConnecting)

	if err := h.source.Open(ctx); err != nil {
		h.state.SetError(fmt.Sprintf("video source open failed: %v", err))
		return err
	}

	h.state.Set(handler.StateConnected)
	h.appendMarker("video source activated")

	loopCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(h.done)
		h.captureLoop(loopCtx)
	}()

	return nil
}

// Stop halts the capture loop and releases the source. The deactivation
// marker lands in the store before the state returns to Disconnected.
func (h *Handler) Stop(timeout time.Duration) error {
	if !h.running.Swap(false) {
		h.state.Set(handler.StateDisconnected)
		return nil
	}

	close(h.shutdown)
	h.cancel()
	// Unblock a source stuck in Next.
	_ = h.source.Close()

	select {
	case <-h.done:
	case <-time.After(timeout):
		h.state.Set(handler.StateDisconnected)
		return errors.WrapConcurrency(
			fmt.Errorf("capture loop did not exit within %s", timeout),
			"VideoIngestHandler", "Stop", "loop shutdown")
	}

	h.appendMarker("video source deactivated")
	h.state.Set(handler.StateDisconnected)
	h.logger.Info("capture stopped", "frames", h.frames.Load(), "descriptors", h.descriptors.Load())
	return nil
}

func (h *Handler) captureLoop(ctx context.Context) {
	for {
		select {
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		frame, err := h.source.Next(ctx)
		if err != nil {
			if !h.running.Load() || stderrors.Is(err, context.Canceled) {
				return
			}
			// The stream ended or the device went away. Unlike the
			// pollers there is no interval to ride out, so this is
			// terminal until the next explicit Start.
			h.state.SetError(fmt.Sprintf("frame capture failed: %v", err))
			h.logger.Warn("capture loop ending", "frames", h.frames.Load(), "error", err)
			return
		}

		total := h.frames.Add(1)
		h.sink.HandleFrame(frame)

		if total%int64(h.config.FrameEvery) == 0 {
			h.appendDescriptor(frame)
		}
	}
}

func (h *Handler) appendDescriptor(frame Frame) {
	msg := message.New(
		message.ProtocolVideo,
		message.FramePayload{FrameIndex: frame.Index, CapturedAt: frame.CapturedAt},
		message.WithSource(h.config.Source),
		message.WithTime(frame.CapturedAt),
	)
	if _, err := h.store.Append(msg); err != nil {
		h.logger.Error("store append failed", "error", err)
		return
	}
	h.descriptors.Add(1)
}

func (h *Handler) appendMarker(note string) {
	msg := message.New(
		message.ProtocolVideo,
		message.FramePayload{FrameIndex: h.frames.Load(), CapturedAt: time.Now().UTC(), Note: note},
		message.WithSource(h.config.Source),
	)
	if _, err := h.store.Append(msg); err != nil {
		h.logger.Error("store append failed", "note", note, "error", err)
	}
}

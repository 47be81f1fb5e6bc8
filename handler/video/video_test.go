package video

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/store"
)

// fakeSource feeds scripted frames through a channel.
type fakeSource struct {
	openErr error
	frames  chan Frame
	closed  atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan Frame, 16)}
}

func (f *fakeSource) Open(context.Context) error { return f.openErr }

func (f *fakeSource) Next(ctx context.Context) (Frame, error) {
	select {
	case frame, ok := <-f.frames:
		if !ok {
			return Frame{}, stderrors.New("stream ended")
		}
		return frame, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSource) push(n int) {
	for i := 0; i < n; i++ {
		f.frames <- Frame{Index: int64(i + 1), CapturedAt: time.Now().UTC(), Data: []byte{0xff, 0xd8}}
	}
}

// collectSink records every frame it receives.
type collectSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *collectSink) HandleFrame(f Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newHandler(t *testing.T, source FrameSource, sink FrameSink, frameEvery int) (*Handler, *store.Store) {
	t.Helper()

	s, err := store.New()
	require.NoError(t, err)

	cfg := config.DefaultVideoConfig()
	cfg.FrameEvery = frameEvery

	h, err := New(Deps{Config: cfg, Store: s, Source: source, Sink: sink})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop(2 * time.Second) })
	return h, s
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := config.DefaultVideoConfig()
	cfg.FrameEvery = 0
	_, err := New(Deps{Config: cfg})
	assert.Error(t, err)
}

func TestStart_OpenFailureIsTerminal(t *testing.T) {
	source := newFakeSource()
	source.openErr = stderrors.New("no such device")

	h, s := newHandler(t, source, nil, 30)
	err := h.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, handler.StateError, h.Status().State)
	assert.Zero(t, s.Count(), "no marker when the source never opened")
}

func TestCapture_EveryNthFrameStored(t *testing.T) {
	source := newFakeSource()
	sink := &collectSink{}

	h, s := newHandler(t, source, sink, 2)
	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, handler.StateConnected, h.Status().State)

	source.push(5)
	require.Eventually(t, func() bool { return h.Frames() == 5 },
		3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 5, sink.count(), "every frame reaches the sink")
	require.Eventually(t, func() bool { return h.Descriptors() == 2 },
		time.Second, 10*time.Millisecond, "frames 2 and 4 produce descriptors")

	// Activation marker plus two descriptors.
	require.Equal(t, 3, s.Count())
	msgs := s.Snapshot()

	marker, ok := msgs[0].Payload.(message.FramePayload)
	require.True(t, ok)
	assert.Equal(t, "video source activated", marker.Note)

	for _, msg := range msgs {
		assert.Equal(t, message.ProtocolVideo, msg.Protocol)
		assert.Equal(t, message.KindFrame, msg.Payload.Kind())
	}
}

func TestCapture_StreamEndFlipsToError(t *testing.T) {
	source := newFakeSource()

	h, _ := newHandler(t, source, nil, 30)
	require.NoError(t, h.Start(context.Background()))

	source.push(1)
	close(source.frames)

	require.Eventually(t, func() bool { return h.Status().State == handler.StateError },
		3*time.Second, 10*time.Millisecond, "a dead stream is not silently retried")
}

func TestStop_AppendsDeactivationMarker(t *testing.T) {
	source := newFakeSource()

	h, s := newHandler(t, source, nil, 30)
	require.NoError(t, h.Start(context.Background()))
	source.push(3)
	require.Eventually(t, func() bool { return h.Frames() == 3 },
		3*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Stop(2*time.Second))
	assert.Equal(t, handler.StateDisconnected, h.Status().State)
	assert.True(t, source.closed.Load(), "source released on stop")

	msgs := s.Snapshot()
	require.Len(t, msgs, 2, "activation and deactivation markers")
	last, ok := msgs[len(msgs)-1].Payload.(message.FramePayload)
	require.True(t, ok)
	assert.Equal(t, "video source deactivated", last.Note)
	assert.Equal(t, int64(3), last.FrameIndex)
}

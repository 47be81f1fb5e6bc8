// Package video implements the frame-driven acquisition handler. Frames
// come from a local capture device, an HTTP MJPEG multipart stream, or an
// RTSP stream; full frames go to the rendering collaborator while the
// store receives lightweight frame descriptors.
package video

import (
	"context"
	"strconv"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
)

// Frame is one captured video frame. Data is the encoded frame handed to
// the sink; it is never stored.
type Frame struct {
	Index      int64
	CapturedAt time.Time
	Data       []byte
}

// FrameSink receives every captured frame. The display layer's renderer
// implements this; the handler itself only stores descriptors.
type FrameSink interface {
	HandleFrame(Frame)
}

// discardSink drops frames when no renderer is attached.
type discardSink struct{}

func (discardSink) HandleFrame(Frame) {}

// FrameSource is one acquisition strategy for frames. Open must fail fast
// when the source cannot be reached; Next blocks until a frame arrives,
// the source ends, or ctx is done.
type FrameSource interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// newSource selects the source implementation for a stream kind.
func newSource(cfg config.VideoConfig) (FrameSource, error) {
	switch cfg.Kind {
	case config.StreamMJPEG:
		return newMJPEGSource(cfg.Source), nil
	case config.StreamDevice:
		index, err := strconv.Atoi(cfg.Source)
		if err != nil {
			// Non-numeric sources name a device path directly.
			return newCaptureSource(cfg.Source), nil
		}
		return newCaptureSource(index), nil
	case config.StreamRTSP:
		return newCaptureSource(cfg.Source), nil
	default:
		return nil, errors.WrapConfig(errors.ErrInvalidConfig, "VideoIngestHandler", "newSource", "stream kind")
	}
}

package video

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/htier-pubsub/HtierDemoApp/errors"
)

// captureSource wraps an OpenCV capture for local devices and RTSP
// streams. The source argument is a device index (int) or a stream URL.
type captureSource struct {
	source any

	capture *gocv.VideoCapture
	mat     gocv.Mat
	index   int64
}

func newCaptureSource(source any) *captureSource {
	return &captureSource{source: source}
}

// Open acquires the capture device or stream.
func (s *captureSource) Open(_ context.Context) error {
	capture, err := gocv.OpenVideoCapture(s.source)
	if err != nil {
		return errors.WrapConnection(err, "CaptureSource", "Open", "capture open")
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return errors.WrapConnection(
			fmt.Errorf("capture source %v did not open", s.source),
			"CaptureSource", "Open", "capture open")
	}

	s.capture = capture
	s.mat = gocv.NewMat()
	return nil
}

// Next grabs one frame. A failed grab means the device went away or the
// stream ended; the handler treats that as terminal.
func (s *captureSource) Next(ctx context.Context) (Frame, error) {
	if s.capture == nil {
		return Frame{}, errors.WrapConnection(errors.ErrNotStarted, "CaptureSource", "Next", "frame grab")
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return Frame{}, errors.WrapConnection(
			fmt.Errorf("capture source %v stopped producing frames", s.source),
			"CaptureSource", "Next", "frame grab")
	}

	data, err := s.mat.ToBytes()
	if err != nil {
		return Frame{}, errors.WrapDecode(err, "CaptureSource", "Next", "frame copy")
	}

	s.index++
	return Frame{Index: s.index, CapturedAt: time.Now().UTC(), Data: data}, nil
}

// Close releases the capture and its frame buffer.
func (s *captureSource) Close() error {
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	_ = s.mat.Close()
	return err
}

package video

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/errors"
)

// mjpegSource pulls JPEG frames off an HTTP multipart/x-mixed-replace
// stream. The request stays open for the life of the source, so the
// client carries no overall timeout; cancellation comes from Close.
type mjpegSource struct {
	url    string
	client *http.Client

	cancel func()
	body   io.ReadCloser
	reader *multipart.Reader
	index  int64
}

func newMJPEGSource(url string) *mjpegSource {
	return &mjpegSource{
		url:    url,
		client: &http.Client{},
	}
}

// Open issues the streaming GET and validates the multipart content type.
func (s *mjpegSource) Open(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return errors.WrapConfig(err, "MJPEGSource", "Open", "request build")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return errors.WrapConnection(err, "MJPEGSource", "Open", "stream request")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return errors.WrapConnection(
			fmt.Errorf("stream returned status %d", resp.StatusCode),
			"MJPEGSource", "Open", "stream request")
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return errors.WrapDecode(
			fmt.Errorf("not an MJPEG stream: content type %q", resp.Header.Get("Content-Type")),
			"MJPEGSource", "Open", "content type check")
	}

	// The caller's ctx only bounds Open itself; once the stream is up,
	// its lifetime belongs to Close.
	select {
	case <-ctx.Done():
		resp.Body.Close()
		cancel()
		return errors.WrapConnection(ctx.Err(), "MJPEGSource", "Open", "stream request")
	default:
	}

	s.cancel = cancel
	s.body = resp.Body
	s.reader = multipart.NewReader(resp.Body, params["boundary"])
	return nil
}

// Next reads the next multipart part as one frame.
func (s *mjpegSource) Next(ctx context.Context) (Frame, error) {
	if s.reader == nil {
		return Frame{}, errors.WrapConnection(errors.ErrNotStarted, "MJPEGSource", "Next", "stream read")
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	part, err := s.reader.NextPart()
	if err != nil {
		return Frame{}, errors.WrapConnection(err, "MJPEGSource", "Next", "part read")
	}
	data, err := io.ReadAll(part)
	part.Close()
	if err != nil {
		return Frame{}, errors.WrapConnection(err, "MJPEGSource", "Next", "frame read")
	}

	s.index++
	return Frame{Index: s.index, CapturedAt: time.Now().UTC(), Data: data}, nil
}

// Close tears down the streaming request.
func (s *mjpegSource) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.body != nil {
		err := s.body.Close()
		s.body = nil
		s.reader = nil
		return err
	}
	return nil
}

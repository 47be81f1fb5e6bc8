package video

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mjpegTestServer streams the given frames once, then ends the response.
func mjpegTestServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writer := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+writer.Boundary())
		w.WriteHeader(http.StatusOK)

		for _, frame := range frames {
			part, err := writer.CreatePart(textproto.MIMEHeader{
				"Content-Type": {"image/jpeg"},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		_ = writer.Close()
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMJPEGSource_ReadsFramesInOrder(t *testing.T) {
	frames := [][]byte{
		[]byte("frame-one"),
		[]byte("frame-two"),
		[]byte("frame-three"),
	}
	server := mjpegTestServer(t, frames)

	source := newMJPEGSource(server.URL)
	require.NoError(t, source.Open(context.Background()))
	defer source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, want := range frames {
		frame, err := source.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), frame.Index)
		assert.Equal(t, want, frame.Data)
		assert.False(t, frame.CapturedAt.IsZero())
	}

	_, err := source.Next(ctx)
	assert.Error(t, err, "an ended stream surfaces as a read error")
}

func TestMJPEGSource_RejectsNonMultipartResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not a camera</html>"))
	}))
	t.Cleanup(server.Close)

	source := newMJPEGSource(server.URL)
	err := source.Open(context.Background())
	require.Error(t, err)
}

func TestMJPEGSource_OpenFailsWhenUnreachable(t *testing.T) {
	source := newMJPEGSource("http://127.0.0.1:1/stream")
	err := source.Open(context.Background())
	require.Error(t, err)
}

func TestMJPEGSource_NextBeforeOpen(t *testing.T) {
	source := newMJPEGSource("http://127.0.0.1:1/stream")
	_, err := source.Next(context.Background())
	assert.Error(t, err)
}

func TestVideoHandler_OverMJPEGStream(t *testing.T) {
	frames := [][]byte{
		[]byte("a"), []byte("b"), []byte("c"), []byte("d"),
	}
	server := mjpegTestServer(t, frames)
	sink := &collectSink{}

	source := newMJPEGSource(server.URL)
	h, s := newHandler(t, source, sink, 2)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return h.Frames() == 4 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, sink.count())

	require.Eventually(t, func() bool { return h.Descriptors() == 2 },
		time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, s.Count(), 3, "activation marker plus two descriptors")
}

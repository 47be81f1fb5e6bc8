package httppoll

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/store"
	"github.com/htier-pubsub/HtierDemoApp/testutil"
)

func newHandler(t *testing.T, relay *testutil.RelayServer) (*Handler, *store.Store) {
	t.Helper()

	s, err := store.New()
	require.NoError(t, err)

	parsed, err := url.Parse(relay.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	cfg := config.DefaultHTTPPollConfig()
	cfg.Host = parsed.Hostname()
	cfg.Port = port
	cfg.PollIntervalSec = 1
	cfg.TimeoutSec = 2

	h, err := New(Deps{Config: cfg, Store: s})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop(2 * time.Second) })
	return h, s
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := config.DefaultHTTPPollConfig()
	cfg.Key = ""
	_, err := New(Deps{Config: cfg})
	assert.Error(t, err)
}

func TestPoll_AppendsDecodedSnapshot(t *testing.T) {
	relay := testutil.NewRelayServer(t)
	relay.Seed("python_message", "[45, 23, 78, 12, 0, 16256]_2025-10-05 14:30:22")

	h, s := newHandler(t, relay)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Count() == 1 },
		3*time.Second, 25*time.Millisecond)

	assert.Equal(t, handler.StateConnected, h.Status().State)

	msg := s.Snapshot()[0]
	assert.Equal(t, message.ProtocolHTTP, msg.Protocol)
	payload, ok := msg.Payload.(message.SnapshotPayload)
	require.True(t, ok)
	assert.True(t, testutil.Snapshot(45, 23, 78, 12, 0, 16256).Equal(payload.Snapshot))
	assert.True(t, msg.Timestamp.Equal(payload.Snapshot.Timestamp),
		"message carries the snapshot's own clock")
}

func TestPoll_FailedHealthCheckKeepsPolling(t *testing.T) {
	relay := testutil.NewRelayServer(t)
	relay.SetHealthy(false)
	// No key seeded either, so every poll fails.

	h, _ := newHandler(t, relay)
	require.NoError(t, h.Start(context.Background()),
		"an unreachable relay is an Error state, not a start failure")
	assert.Equal(t, handler.StateError, h.Status().State)

	require.Eventually(t, func() bool { return relay.GetCount() >= 2 },
		5*time.Second, 50*time.Millisecond, "polls must continue at the configured interval")
	assert.Equal(t, handler.StateError, h.Status().State)
}

func TestPoll_DecodeFailureSkippedWithoutStateChange(t *testing.T) {
	relay := testutil.NewRelayServer(t)
	relay.Seed("python_message", "not-a-valid-message")

	h, s := newHandler(t, relay)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return h.DecodeFailures() >= 1 },
		3*time.Second, 25*time.Millisecond)

	assert.Zero(t, s.Count(), "malformed payloads are skipped, not stored")
	assert.Equal(t, handler.StateConnected, h.Status().State,
		"a decode failure must not change the connection state")
}

func TestPoll_DeduplicatesConsecutiveIdenticalBodies(t *testing.T) {
	relay := testutil.NewRelayServer(t)
	relay.Seed("python_message", testutil.WirePayload(1, 2, 3))

	h, s := newHandler(t, relay)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return h.Polls() >= 3 },
		5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, s.Count(), "identical consecutive bodies append once")

	relay.Seed("python_message", testutil.WirePayload(9, 9, 9))
	require.Eventually(t, func() bool { return s.Count() == 2 },
		5*time.Second, 50*time.Millisecond)
}

func TestPoll_RecoversAfterRelayReturns(t *testing.T) {
	relay := testutil.NewRelayServer(t)

	h, s := newHandler(t, relay)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return h.Status().State == handler.StateError },
		3*time.Second, 25*time.Millisecond, "missing key flips to Error")

	relay.Seed("python_message", testutil.WirePayload(7))
	require.Eventually(t, func() bool { return s.Count() == 1 },
		5*time.Second, 50*time.Millisecond)
	assert.Equal(t, handler.StateConnected, h.Status().State)
}

func TestStop_HaltsPolling(t *testing.T) {
	relay := testutil.NewRelayServer(t)
	relay.Seed("python_message", testutil.WirePayload(1))

	h, _ := newHandler(t, relay)
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Stop(2*time.Second))
	assert.Equal(t, handler.StateDisconnected, h.Status().State)

	settled := relay.GetCount()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, settled, relay.GetCount(), "no polls after Stop")
}

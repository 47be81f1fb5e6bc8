package store

import (
	"fmt"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/metric"
)

func textMessage(text string) message.Message {
	return message.New(message.ProtocolMQTT, message.TextPayload{Text: text})
}

func TestAppend_AssignsMonotonicSeq(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		stored, err := s.Append(textMessage(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), stored.Seq)
	}

	snapshot := s.Snapshot()
	require.Len(t, snapshot, 5)
	for i, m := range snapshot {
		assert.Equal(t, uint64(i+1), m.Seq)
	}
}

func TestAppend_RejectsInvalidMessage(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Append(message.Message{})
	assert.Error(t, err)
	assert.Zero(t, s.Count())
}

func TestConcurrentAppends_NoLossNoGaps(t *testing.T) {
	s, err := New(WithCapacity(10000))
	require.NoError(t, err)

	const writers = 8
	const perWriter = 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.Append(textMessage(fmt.Sprintf("w%d-%d", w, i)))
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	snapshot := s.Snapshot()
	require.Len(t, snapshot, writers*perWriter)

	seen := make(map[string]bool, len(snapshot))
	for i, m := range snapshot {
		assert.Equal(t, uint64(i+1), m.Seq, "sequence ids must be gap-free")
		text := m.Payload.(message.TextPayload).Text
		assert.False(t, seen[text], "payload %s duplicated", text)
		seen[text] = true
	}
}

func TestSnapshot_IndependentOfLaterAppends(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Append(textMessage("first"))
	require.NoError(t, err)

	snapshot := s.Snapshot()
	_, err = s.Append(textMessage("second"))
	require.NoError(t, err)

	assert.Len(t, snapshot, 1, "snapshot is a point-in-time copy")
	assert.Len(t, s.Snapshot(), 2)
}

func TestClear_StartsNewGeneration(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Append(textMessage("x"))
		require.NoError(t, err)
	}

	s.Clear()
	assert.Empty(t, s.Snapshot())
	assert.Zero(t, s.Count())
	assert.Equal(t, uint64(1), s.Generation())

	stored, err := s.Append(textMessage("fresh"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.Seq, "sequence ids reset to 1 after clear")
}

func TestClear_RacingAppendsLeaveWellDefinedState(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Append(textMessage("racer"))
		}()
		go func() {
			defer wg.Done()
			s.Clear()
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the surviving prefix must be
	// gap-free from 1.
	for i, m := range s.Snapshot() {
		assert.Equal(t, uint64(i+1), m.Seq)
	}
}

func TestCapacity_DropsOldest(t *testing.T) {
	s, err := New(WithCapacity(3))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := s.Append(textMessage(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}

	snapshot := s.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "m3", snapshot[0].Payload.(message.TextPayload).Text)
	assert.Equal(t, uint64(5), snapshot[2].Seq, "seq keeps climbing past drops")
}

func TestWithCapacity_RejectsNonPositive(t *testing.T) {
	_, err := New(WithCapacity(0))
	assert.Error(t, err)
}

func TestWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s, err := New(WithMetrics(registry))
	require.NoError(t, err)

	_, err = s.Append(textMessage("counted"))
	require.NoError(t, err)
	s.Clear()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["htierhub_store_appends_total"])
	assert.True(t, names["htierhub_store_clears_total"])
}

func TestWithMetrics_SizeGaugeTracksCountUnderContention(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s, err := New(WithMetrics(registry), WithCapacity(64))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := s.Append(textMessage("racing"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(s.Count()), promtestutil.ToFloat64(s.metrics.size),
		"gauge updates must apply in append order")
}

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htier-pubsub/HtierDemoApp/message"
)

func TestPersistence_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s, err := New(WithPersistence(dir))
	require.NoError(t, err)

	_, err = s.Append(textMessage("one"))
	require.NoError(t, err)
	_, err = s.Append(textMessage("two"))
	require.NoError(t, err)

	// A fresh store over the same directory restores the log and
	// continues the sequence.
	restored, err := New(WithPersistence(dir))
	require.NoError(t, err)

	snapshot := restored.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "one", snapshot[0].Payload.(message.TextPayload).Text)

	stored, err := restored.Append(textMessage("three"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stored.Seq)
}

func TestPersistence_CounterFileTracksSeq(t *testing.T) {
	dir := t.TempDir()

	s, err := New(WithPersistence(dir))
	require.NoError(t, err)

	_, err = s.Append(textMessage("x"))
	require.NoError(t, err)

	counter, err := os.ReadFile(filepath.Join(dir, counterFileName))
	require.NoError(t, err)
	assert.Equal(t, "1", string(counter))
}

func TestPersistence_ClearTruncates(t *testing.T) {
	dir := t.TempDir()

	s, err := New(WithPersistence(dir))
	require.NoError(t, err)

	_, err = s.Append(textMessage("gone"))
	require.NoError(t, err)
	s.Clear()

	restored, err := New(WithPersistence(dir))
	require.NoError(t, err)
	assert.Empty(t, restored.Snapshot())

	counter, err := os.ReadFile(filepath.Join(dir, counterFileName))
	require.NoError(t, err)
	assert.Equal(t, "0", string(counter))
}

func TestPersistence_CorruptLogDiscarded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, logFileName), []byte("{not json\n"), 0o644))

	s, err := New(WithPersistence(dir))
	require.NoError(t, err, "corrupt projection must not fail construction")
	assert.Empty(t, s.Snapshot())
}

func TestPersistence_StaleGenerationWriteDropped(t *testing.T) {
	dir := t.TempDir()

	p, err := newFilePersister(dir)
	require.NoError(t, err)

	require.NoError(t, p.append(textMessage("current"), 0))

	// A clear lands on disk before a racing append from the old
	// generation does. The stale write must not survive the truncate.
	require.NoError(t, p.reset(1))
	require.NoError(t, p.append(textMessage("stale"), 0))

	msgs, err := p.load()
	require.NoError(t, err)
	assert.Empty(t, msgs, "a prior-generation message must not resurrect after a clear")
}

func TestPersistence_OutdatedResetIgnored(t *testing.T) {
	dir := t.TempDir()

	p, err := newFilePersister(dir)
	require.NoError(t, err)

	require.NoError(t, p.reset(2))
	require.NoError(t, p.append(textMessage("kept"), 2))

	// A straggling reset from an older clear is a no-op.
	require.NoError(t, p.reset(1))

	msgs, err := p.load()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestPersistence_CapacityAppliedOnRestore(t *testing.T) {
	dir := t.TempDir()

	s, err := New(WithPersistence(dir), WithCapacity(1000))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Append(textMessage("m"))
		require.NoError(t, err)
	}

	restored, err := New(WithPersistence(dir), WithCapacity(2))
	require.NoError(t, err)
	snapshot := restored.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, uint64(5), snapshot[1].Seq)
}

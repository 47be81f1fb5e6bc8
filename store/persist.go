package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/message"
)

// On-disk projection file names. The schema is private to the store; no
// other component parses these files.
const (
	logFileName     = "messages.jsonl"
	counterFileName = "message_counter.txt"
)

// filePersister mirrors the store onto disk: one JSON line per message
// plus a counter file holding the last assigned sequence id. Writes carry
// the store generation they belong to, so an append racing a clear can be
// recognized as stale and dropped instead of landing after the truncate.
type filePersister struct {
	mu          sync.Mutex
	generation  uint64
	logPath     string
	counterPath string
}

func newFilePersister(dir string) (*filePersister, error) {
	if dir == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("empty persistence directory"),
			"Store", "New", "persistence setup")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapConfig(err, "Store", "New", "persistence directory create")
	}
	return &filePersister{
		logPath:     filepath.Join(dir, logFileName),
		counterPath: filepath.Join(dir, counterFileName),
	}, nil
}

// append writes one message to the log and refreshes the counter file.
// Messages from a superseded generation are silently discarded; they must
// not resurrect into a fresh store on the next load.
func (p *filePersister) append(m message.Message, generation uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if generation != p.generation {
		return nil
	}

	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", m.ID, err)
	}

	f, err := os.OpenFile(p.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	_, writeErr := f.Write(append(line, '\n'))
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("write log: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close log: %w", closeErr)
	}

	return os.WriteFile(p.counterPath, []byte(strconv.FormatUint(m.Seq, 10)), 0o644)
}

// reset truncates both projection files and advances to generation. An
// out-of-date reset racing a newer one is a no-op.
func (p *filePersister) reset(generation uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if generation < p.generation {
		return nil
	}
	p.generation = generation

	if err := os.WriteFile(p.logPath, nil, 0o644); err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	return os.WriteFile(p.counterPath, []byte("0"), 0o644)
}

// load reads back the persisted log. Missing files mean an empty store.
func (p *filePersister) load() ([]message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Open(p.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var msgs []message.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m message.Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, fmt.Errorf("corrupt log line: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return msgs, nil
}

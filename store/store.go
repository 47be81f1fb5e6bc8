// Package store implements the message store that hands data from
// acquisition handlers to the polling reader. It is the sole integration
// point between the two: a mutex-guarded append-only log with generations.
package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/metric"
)

// DefaultCapacity bounds the log to the most recent messages; older ones
// are dropped oldest-first.
const DefaultCapacity = 100

// Store is an append-only message log safe for one concurrent writer and
// one concurrent reader (and in fact for any number of each). Appends are
// atomic: a snapshot never observes a partially written message, and every
// append completed before a Snapshot call began is visible in its result.
type Store struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	capacity   int
	msgs       []message.Message
	nextSeq    uint64
	generation uint64
	persister  *filePersister
	metrics    *storeMetrics
}

// Option customizes a store at construction.
type Option func(*Store) error

// WithCapacity bounds the number of retained messages.
func WithCapacity(n int) Option {
	return func(s *Store) error {
		if n < 1 {
			return errors.WrapConfig(
				fmt.Errorf("capacity %d must be positive", n),
				"Store", "New", "capacity validation")
		}
		s.capacity = n
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics registers store metrics with the given registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Store) error {
		metrics, err := newStoreMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = metrics
		return nil
	}
}

// WithPersistence enables the best-effort on-disk projection: a JSONL
// message log plus a numeric counter file under dir. Messages surviving in
// the log are reloaded at construction. Persistence failures are logged,
// never surfaced; the disk projection is not part of the store's contract.
func WithPersistence(dir string) Option {
	return func(s *Store) error {
		persister, err := newFilePersister(dir)
		if err != nil {
			return err
		}
		s.persister = persister
		return nil
	}
}

// New creates a message store.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		capacity: DefaultCapacity,
		logger:   slog.Default().With("component", "store"),
		nextSeq:  1,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.persister != nil {
		msgs, err := s.persister.load()
		if err != nil {
			s.logger.Warn("discarding unreadable persisted log", "error", err)
			_ = s.persister.reset(s.generation)
		} else if len(msgs) > 0 {
			if len(msgs) > s.capacity {
				msgs = msgs[len(msgs)-s.capacity:]
			}
			s.msgs = msgs
			s.nextSeq = msgs[len(msgs)-1].Seq + 1
			s.logger.Info("restored persisted messages", "count", len(msgs))
		}
	}

	return s, nil
}

// Append stores a message, assigning the next sequence id, and returns the
// stored copy. The payload must not be mutated afterwards.
func (s *Store) Append(m message.Message) (message.Message, error) {
	if err := m.Validate(); err != nil {
		return message.Message{}, errors.WrapConfig(err, "Store", "Append", "message validation")
	}

	s.mu.Lock()
	m.Seq = s.nextSeq
	s.nextSeq++
	s.msgs = append(s.msgs, m)

	dropped := 0
	if len(s.msgs) > s.capacity {
		dropped = len(s.msgs) - s.capacity
		s.msgs = append(s.msgs[:0:0], s.msgs[dropped:]...)
	}
	// The size gauge is only authoritative while the lock is held; racing
	// appends would otherwise apply their Sets out of order.
	if s.metrics != nil {
		s.metrics.appends.Inc()
		s.metrics.size.Set(float64(len(s.msgs)))
		if dropped > 0 {
			s.metrics.drops.Add(float64(dropped))
		}
	}
	generation := s.generation
	persister := s.persister
	s.mu.Unlock()

	if persister != nil {
		if err := persister.append(m, generation); err != nil {
			s.logger.Warn("persist append failed", "seq", m.Seq, "error", err)
		}
	}

	return m, nil
}

// Snapshot returns a consistent point-in-time view of the log, oldest to
// newest. The returned slice is the caller's to keep.
func (s *Store) Snapshot() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Clear starts a new generation: the log empties and sequence ids restart
// at 1. Messages of the prior generation become unreachable.
func (s *Store) Clear() {
	s.mu.Lock()
	s.msgs = nil
	s.nextSeq = 1
	s.generation++
	if s.metrics != nil {
		s.metrics.clears.Inc()
		s.metrics.size.Set(0)
	}
	generation := s.generation
	persister := s.persister
	s.mu.Unlock()

	if persister != nil {
		if err := persister.reset(generation); err != nil {
			s.logger.Warn("persist reset failed", "error", err)
		}
	}
}

// Count returns the number of retained messages.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Generation returns how many times the store has been cleared.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

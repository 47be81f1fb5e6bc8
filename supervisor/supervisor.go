// Package supervisor owns the active acquisition session: exactly one
// protocol handler runs at a time, and switching protocols is a
// transaction over the handler lifecycle and the message store.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/handler/httppoll"
	"github.com/htier-pubsub/HtierDemoApp/handler/mqtt"
	"github.com/htier-pubsub/HtierDemoApp/handler/registerpoll"
	"github.com/htier-pubsub/HtierDemoApp/handler/video"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/store"
)

// DefaultStopTimeout bounds how long a handler being replaced may take to
// exit before the switch gives up on it.
const DefaultStopTimeout = 5 * time.Second

// Factory builds a handler for a validated connection config.
type Factory func(cfg config.ConnectionConfig, s *store.Store, logger *slog.Logger) (handler.Handler, error)

// Session describes the currently running acquisition session.
type Session struct {
	Protocol  message.Protocol `json:"protocol"`
	StartedAt time.Time        `json:"started_at"`
}

// Status is the supervisor's reader-facing view: the session, if any, and
// the connection status of its handler.
type Status struct {
	Session    *Session       `json:"session,omitempty"`
	Connection handler.Status `json:"connection"`
	Generation uint64         `json:"generation"`
}

// Deps holds runtime dependencies for the supervisor.
type Deps struct {
	Store  *store.Store
	Logger *slog.Logger
}

// Option customizes a supervisor at construction.
type Option func(*Supervisor)

// WithStopTimeout bounds handler shutdown during a switch.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.stopTimeout = d }
}

// WithFactory overrides the handler factory for one protocol.
func WithFactory(p message.Protocol, f Factory) Option {
	return func(s *Supervisor) { s.factories[p] = f }
}

// Supervisor serializes all session transitions behind one mutex. Handler
// goroutines run free; only starting, stopping and switching are serialized.
type Supervisor struct {
	store       *store.Store
	logger      *slog.Logger
	stopTimeout time.Duration
	factories   map[message.Protocol]Factory

	mu      sync.Mutex
	current handler.Handler
	session *Session
	// zombie is a replaced handler whose Stop timed out. It may still be
	// running, so no successor starts until a later Stop confirms exit.
	zombie  handler.Handler
	lastErr string
}

// New creates a supervisor with the production handler factories.
func New(deps Deps, opts ...Option) (*Supervisor, error) {
	if deps.Store == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "Supervisor", "New", "store dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "supervisor")
	}

	s := &Supervisor{
		store:       deps.Store,
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		factories:   defaultFactories(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func defaultFactories() map[message.Protocol]Factory {
	return map[message.Protocol]Factory{
		message.ProtocolMQTT: func(cfg config.ConnectionConfig, s *store.Store, logger *slog.Logger) (handler.Handler, error) {
			return mqtt.New(mqtt.Deps{Config: *cfg.MQTT, Store: s, Logger: logger})
		},
		message.ProtocolHTTP: func(cfg config.ConnectionConfig, s *store.Store, logger *slog.Logger) (handler.Handler, error) {
			return httppoll.New(httppoll.Deps{Config: *cfg.HTTP, Store: s, Logger: logger})
		},
		message.ProtocolRegister: func(cfg config.ConnectionConfig, s *store.Store, logger *slog.Logger) (handler.Handler, error) {
			return registerpoll.New(registerpoll.Deps{Config: *cfg.Register, Store: s, Logger: logger})
		},
		message.ProtocolVideo: func(cfg config.ConnectionConfig, s *store.Store, logger *slog.Logger) (handler.Handler, error) {
			return video.New(video.Deps{Config: *cfg.Video, Store: s, Logger: logger})
		},
	}
}

// Start launches the first session. It fails if a session is already
// running; use SwitchProtocol to replace one.
func (s *Supervisor) Start(ctx context.Context, cfg config.ConnectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return errors.WrapConfig(errors.ErrAlreadyStarted, "Supervisor", "Start", "session check")
	}
	if err := s.reapZombieLocked(); err != nil {
		return err
	}
	return s.startLocked(ctx, cfg)
}

// reapZombieLocked retries shutdown of a handler whose Stop previously
// timed out. A still-running predecessor could append stale-protocol
// messages into the new generation, so nothing starts over its corpse
// until it confirms exit. Callers hold s.mu.
func (s *Supervisor) reapZombieLocked() error {
	if s.zombie == nil {
		return nil
	}
	if err := s.zombie.Stop(s.stopTimeout); err != nil {
		s.lastErr = fmt.Sprintf("previous handler still exiting: %v", err)
		return errors.WrapConcurrency(err, "Supervisor", "SwitchProtocol", "predecessor shutdown")
	}
	s.zombie = nil
	return nil
}

// SwitchProtocol replaces the running session with one for cfg. The switch
// is transactional: the old handler is stopped and waited for, the store is
// cleared (a new generation begins), and only then does the new handler
// start. Any failure past the config check leaves the store cleared and no
// session running, so the reader observes either the old stream or a fresh
// one, never a blend.
func (s *Supervisor) SwitchProtocol(ctx context.Context, cfg config.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := message.Protocol("")
	if s.session != nil {
		from = s.session.Protocol
	}
	s.logger.Info("switching protocol", "from", string(from), "to", string(cfg.Protocol))

	if err := s.reapZombieLocked(); err != nil {
		s.store.Clear()
		return err
	}

	if s.current != nil {
		old := s.current
		s.current = nil
		s.session = nil
		if err := old.Stop(s.stopTimeout); err != nil {
			s.zombie = old
			s.store.Clear()
			s.lastErr = fmt.Sprintf("previous handler did not stop: %v", err)
			return errors.WrapConcurrency(err, "Supervisor", "SwitchProtocol", "old handler shutdown")
		}
	}

	s.store.Clear()
	return s.startLocked(ctx, cfg)
}

// startLocked builds and starts a handler for cfg. Callers hold s.mu.
func (s *Supervisor) startLocked(ctx context.Context, cfg config.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	factory, ok := s.factories[cfg.Protocol]
	if !ok {
		return errors.WrapConfig(
			fmt.Errorf("no handler registered for protocol %q", cfg.Protocol),
			"Supervisor", "Start", "factory lookup")
	}

	h, err := factory(cfg, s.store, s.logger.With("protocol", string(cfg.Protocol)))
	if err != nil {
		s.lastErr = fmt.Sprintf("handler construction failed: %v", err)
		return err
	}

	if err := h.Start(ctx); err != nil {
		s.lastErr = fmt.Sprintf("handler start failed: %v", err)
		_ = h.Stop(s.stopTimeout)
		return err
	}

	s.current = h
	s.session = &Session{Protocol: cfg.Protocol, StartedAt: time.Now().UTC()}
	s.lastErr = ""
	s.logger.Info("session started", "protocol", string(cfg.Protocol))
	return nil
}

// Stop shuts down the running session, if any.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	old := s.current
	s.current = nil
	s.session = nil

	if err := old.Stop(timeout); err != nil {
		s.zombie = old
		return err
	}
	s.logger.Info("session stopped")
	return nil
}

// Status reports the session and its connection state. With no session
// running it reports Disconnected, or Error when the last transition failed.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Generation: s.store.Generation()}
	if s.current != nil {
		session := *s.session
		status.Session = &session
		status.Connection = s.current.Status()
		return status
	}

	if s.lastErr != "" {
		status.Connection = handler.Status{State: handler.StateError, Reason: s.lastErr}
	} else {
		status.Connection = handler.Status{State: handler.StateDisconnected}
	}
	return status
}

// Messages returns the reader's view of the store.
func (s *Supervisor) Messages() []message.Message {
	return s.store.Snapshot()
}

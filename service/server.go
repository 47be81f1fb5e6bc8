// Package service exposes the reader-facing HTTP surface: health, session
// status, the message snapshot, protocol switching, and metrics.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/metric"
	"github.com/htier-pubsub/HtierDemoApp/supervisor"
)

const maxRequestSize = 1 << 20

// requestID extracts the X-Request-ID header or generates a fresh one for
// tracing a call through the logs.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Deps holds runtime dependencies for the reader server.
type Deps struct {
	Config     config.ServerConfig
	Supervisor *supervisor.Supervisor
	Metrics    *metric.MetricsRegistry
	Logger     *slog.Logger
}

// Server is the poll-driven reader's HTTP surface. It never touches
// handlers directly; everything goes through the supervisor and the store
// snapshot behind it.
type Server struct {
	config     config.ServerConfig
	supervisor *supervisor.Supervisor
	metrics    *metric.MetricsRegistry
	logger     *slog.Logger

	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
	startTime  time.Time

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// New creates the reader server.
func New(deps Deps) (*Server, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Supervisor == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "ReaderServer", "New", "supervisor dependency")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "reader-server")
	}

	s := &Server{
		config:     deps.Config,
		supervisor: deps.Supervisor,
		metrics:    deps.Metrics,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.wrap(s.handleHealth))
	mux.HandleFunc("GET /status", s.wrap(s.handleStatus))
	mux.HandleFunc("GET /messages", s.wrap(s.handleMessages))
	mux.HandleFunc("POST /protocol", s.wrap(s.handleSwitch))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start binds the listener and serves in the background. A bind failure
// surfaces synchronously.
func (s *Server) Start(_ context.Context) error {
	if s.running.Load() {
		return errors.WrapConfig(errors.ErrAlreadyStarted, "ReaderServer", "Start", "lifecycle check")
	}

	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return errors.WrapConnection(err, "ReaderServer", "Start", "listener bind")
	}

	s.listener = listener
	s.startTime = time.Now()
	s.running.Store(true)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("reader server stopped unexpectedly", "error", err)
		}
	}()

	s.logger.Info("reader server listening", "addr", listener.Addr().String())
	return nil
}

// Stop drains in-flight requests, bounded by timeout.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.WrapConcurrency(err, "ReaderServer", "Stop", "graceful shutdown")
	}
	s.logger.Info("reader server stopped",
		"requests", s.requestsTotal.Load(), "failed", s.requestsFailed.Load())
	return nil
}

// Addr returns the bound address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr()
	}
	return s.listener.Addr().String()
}

// wrap stamps the request id and counts the call.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", requestID(r))
		s.requestsTotal.Add(1)
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.supervisor.Status())
}

func (s *Server) handleMessages(w http.ResponseWriter, _ *http.Request) {
	msgs := s.supervisor.Messages()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(msgs),
		"messages": msgs,
	})
}

// handleSwitch performs a transactional protocol switch. The caller gets
// the post-switch status on success; on failure the supervisor's error
// state is already observable through /status.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var cfg config.ConnectionConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed connection config")
		return
	}

	// The new session must outlive this request: net/http cancels
	// r.Context() when the handler returns, which would kill the poll
	// loops the switch just started. Keep the request's values but not
	// its cancellation.
	ctx := context.WithoutCancel(r.Context())
	if err := s.supervisor.SwitchProtocol(ctx, cfg); err != nil {
		s.logger.Warn("protocol switch failed", "protocol", string(cfg.Protocol), "error", err)
		s.writeError(w, statusFor(err), sanitize(err))
		return
	}

	s.writeJSON(w, http.StatusOK, s.supervisor.Status())
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsConfig(err):
		return http.StatusBadRequest
	case errors.IsConnection(err) || errors.IsPoll(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sanitize keeps internal endpoints and addresses out of client responses.
func sanitize(err error) string {
	switch {
	case errors.IsConfig(err):
		return "invalid connection config"
	case errors.IsConnection(err):
		return "protocol endpoint unreachable"
	case errors.IsPoll(err):
		return "protocol endpoint unavailable"
	default:
		return "protocol switch failed"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

// Package server exposes a reago.Model over HTTP and WebSocket: a JSON API
// for reading, writing, and invoking entries, and a live endpoint that
// pushes change notifications for watched cells. It is the reference host
// runtime for the model's external subscription primitive.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reago-dev/reago/pkg/reago"
)

// Config holds server settings.
type Config struct {
	// Addr is the listen address (default ":8080").
	Addr string

	// Logger receives server logs (default slog.Default with
	// component=server).
	Logger *slog.Logger

	// EnableMetrics mounts the Prometheus handler on /metrics.
	EnableMetrics bool

	// WriteTimeout bounds a single WebSocket write (default 10s).
	WriteTimeout time.Duration

	// ReadTimeout bounds the wait for a client message; pongs reset it
	// (default 60s).
	ReadTimeout time.Duration

	// PingInterval is the heartbeat interval (default 30s). Must be
	// shorter than ReadTimeout.
	PingInterval time.Duration

	// SendBuffer is the per-session outbound queue length (default 64).
	// A session that cannot drain its queue is closed.
	SendBuffer int
}

// Option configures the server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics mounts /metrics.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.EnableMetrics = enabled
	}
}

// WithSendBuffer sets the per-session outbound queue length.
func WithSendBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SendBuffer = n
		}
	}
}

func defaultConfig() Config {
	return Config{
		Addr:         ":8080",
		Logger:       slog.Default().With("component", "server"),
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		SendBuffer:   64,
	}
}

// Server serves one model.
type Server struct {
	model    *reago.Model
	config   Config
	logger   *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// New builds a server around model.
func New(model *reago.Model, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	s := &Server{
		model:  model,
		config: config,
		logger: config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/api/state", s.handleState)
	r.Get("/api/state/{key}", s.handleGetKey)
	r.Put("/api/state/{key}", s.handleSetKey)
	r.Post("/api/call/{key}", s.handleCall)
	r.Get("/live", s.handleLive)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if s.config.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// Handler returns the HTTP handler, for mounting into a larger router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleState returns a snapshot of every cell.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.model.Snapshot())
}

// handleGetKey returns one cell's current value.
func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if s.model.IsMethod(key) {
		s.writeError(w, &reago.InvalidArgumentError{Reason: "entry is method-backed; use /api/call"})
		return
	}

	value, err := s.model.Get(key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

// setRequest is the body of PUT /api/state/{key}.
type setRequest struct {
	Value any `json:"value"`
}

// handleSetKey writes one cell. Listeners are notified before the response
// is written, per the synchronous notification contract.
func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &reago.InvalidArgumentError{Reason: "body must be JSON with a value field"})
		return
	}

	if err := s.model.Set(key, req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": req.Value})
}

// callRequest is the body of POST /api/call/{key}.
type callRequest struct {
	Args []any `json:"args"`
}

// handleCall invokes a method-backed entry.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req callRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, &reago.InvalidArgumentError{Reason: "body must be JSON with an args array"})
			return
		}
	}

	result, err := s.model.Call(key, req.Args...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "result": result})
}

// handleLive upgrades to WebSocket and runs a live session.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	sess := newSession(s, conn)
	sess.start()
}

// writeError maps registry errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reago.ErrUnknownKey):
		status = http.StatusNotFound
	case errors.Is(err, reago.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, reago.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, reago.ErrDependencyTrace):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package server exposes a measurement session over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/internal/broadcast"
	"github.com/cwbudde/spoke-tension/internal/config"
	"github.com/cwbudde/spoke-tension/internal/history"
	"github.com/cwbudde/spoke-tension/measure/session"
)

// Controller is the session surface driven by the server.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Configure(cfg session.Config) error
	State() session.State
	RunID() string
	Window() (spectrum.Bounds, error)
	Subscribe(fn func(session.Event)) (unsubscribe func())
}

// Message is one server-to-client WebSocket message.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Status is the snapshot served by /status and sent to new clients.
type Status struct {
	State       session.State      `json:"state"`
	RunID       string             `json:"run_id,omitempty"`
	Window      *spectrum.Bounds   `json:"window,omitempty"`
	Spoke       config.Spoke       `json:"spoke"`
	Measurement config.Measurement `json:"measurement"`
	Clients     int                `json:"clients"`
}

// Server serves the live update stream and control commands.
type Server struct {
	ctrl    Controller
	logger  *slog.Logger
	metrics http.Handler
	history *history.Store

	// ctx bounds runs started by clients.
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	cfg config.Config

	hub         broadcast.Hub[Message]
	unsubscribe func()

	clientsMu sync.Mutex
	clients   map[*client]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.With("component", "server")
		}
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHistory serves store on /history.
func WithHistory(store *history.Store) Option {
	return func(s *Server) { s.history = store }
}

// New returns a server for ctrl. cfg is the configuration the session was
// built from; configure commands update its spoke and measurement sections.
func New(ctrl Controller, cfg config.Config, opts ...Option) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("server: controller must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctrl:    ctrl,
		logger:  slog.New(slog.DiscardHandler),
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.unsubscribe = ctrl.Subscribe(s.forward)
	return s, nil
}

// forward runs on the session's publishing goroutine.
func (s *Server) forward(ev session.Event) {
	switch {
	case ev.Update != nil:
		s.hub.Publish(Message{Type: "update", Data: ev.Update})
	case ev.Err != nil:
		s.hub.Publish(Message{Type: "error", Data: ev.Err})
	case ev.Status != nil:
		s.hub.Publish(Message{Type: "status", Data: ev.Status})
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.history != nil {
		mux.HandleFunc("GET /history", s.handleHistory)
	}
	return securityHeaders(mux)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close detaches from the session and disconnects all clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.cancel()
	s.closeClients()
}

// Status returns the current snapshot.
func (s *Server) Status() Status {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	st := Status{
		State:       s.ctrl.State(),
		RunID:       s.ctrl.RunID(),
		Spoke:       cfg.Spoke,
		Measurement: cfg.Measurement,
		Clients:     s.clientCount(),
	}
	if w, err := s.ctrl.Window(); err == nil {
		st.Window = &w
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	opts := history.ListOptions{RunID: r.URL.Query().Get("run_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}

	rows, err := s.history.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("list history failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	if rows == nil {
		rows = []history.Reading{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// securityHeaders wraps next with the standard response headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

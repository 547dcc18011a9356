// Package web exposes the session manager over HTTP: a small JSON API for
// starting and inspecting sessions, a websocket endpoint that streams
// finished turns to a browser client, Prometheus metrics, and health
// probes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/colloquy/internal/app"
	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// shutdownTimeout is how long in-flight requests get to drain.
const shutdownTimeout = 15 * time.Second

// HealthCheck is a named readiness probe. Check returns nil when the
// dependency is usable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server serves the session API. Construct with New, run with Run.
type Server struct {
	addr    string
	manager *app.Manager
	checks  []HealthCheck
	httpSrv *http.Server
	log     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck registers a readiness probe evaluated on each /readyz
// request.
func WithHealthCheck(name string, check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.checks = append(s.checks, HealthCheck{Name: name, Check: check})
	}
}

// New creates a Server listening on addr and backed by manager.
func New(addr string, manager *app.Manager, metrics *observe.Metrics, opts ...Option) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{
		addr:    addr,
		manager: manager,
		log:     slog.Default().With("component", "web"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /sessions", s.handleStartSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/stop", s.handleStopSession)
	mux.HandleFunc("GET /sessions/{id}/stream", s.handleStream)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      observe.Middleware(metrics)(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket streams must not time out
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains connections and stops all
// sessions. A nil return means a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	s.log.Info("listening", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: serve on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	s.manager.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// ── Health ────────────────────────────────────────────────────────────────

type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	allOK := true
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := healthResult{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// ── Session API ───────────────────────────────────────────────────────────

type startSessionRequest struct {
	Topic    string `json:"topic,omitempty"`
	Mode     string `json:"mode,omitempty"`
	MaxTurns int    `json:"max_turns,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	Status    string    `json:"status"`
	Turns     int       `json:"turns"`
	Error     string    `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	mode := config.Mode(req.Mode)
	if mode != "" && mode != config.ModeCasual && mode != config.ModeDebate {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown mode %q", req.Mode)})
		return
	}

	// Sessions outlive the start request; StopAll reaps them on shutdown.
	sess, err := s.manager.Start(context.Background(), app.Overrides{
		Topic:    req.Topic,
		Mode:     mode,
		MaxTurns: req.MaxTurns,
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, sessionToResponse(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.manager.List()
	out := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		if sess, ok := s.manager.Get(info.ID); ok {
			out = append(out, sessionToResponse(sess))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no such session"})
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Stop(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionToResponse(sess *app.Session) sessionResponse {
	info := sess.Info()
	resp := sessionResponse{
		ID:        info.ID,
		Topic:     info.Topic,
		Mode:      info.Mode,
		StartedAt: info.StartedAt,
		Status:    "running",
		Turns:     len(sess.Transcript()),
	}
	select {
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			resp.Status = "failed"
			resp.Error = err.Error()
		} else {
			resp.Status = "done"
		}
	default:
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

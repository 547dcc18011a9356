package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/internal/conversation"
	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/pkg/types"
	"github.com/google/uuid"
)

// turnBuffer is the emit channel capacity per session. The engine blocks on
// a full buffer, which paces generation to however fast the presentation
// layer consumes turns.
const turnBuffer = 2

// SessionInfo holds metadata about a session.
type SessionInfo struct {
	// ID is the session's unique identifier.
	ID string

	// Topic is the session's conversation topic.
	Topic string

	// Mode is "casual" or "debate".
	Mode string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// Session is one running (or finished) conversation. Sessions are fully
// isolated: each owns its engine, transcript, and turn stream.
type Session struct {
	info   SessionInfo
	engine *conversation.Engine
	cancel context.CancelFunc

	turns chan types.Turn
	done  chan struct{}

	mu         sync.Mutex
	transcript []types.Turn
	err        error
}

// Info returns the session's metadata.
func (s *Session) Info() SessionInfo {
	return s.info
}

// Turns returns the stream of finished turns. The channel is closed when
// the session ends.
func (s *Session) Turns() <-chan types.Turn {
	return s.turns
}

// Done is closed when the session has ended, successfully or not.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the session's terminal error, or nil while it is still
// running or after a clean completion.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Transcript returns the turns completed so far. Safe to call while the
// session is running and after it ends; on a fatal failure it holds the
// partial transcript.
func (s *Session) Transcript() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Stop cancels the session. The current turn is abandoned without being
// appended; already-completed turns stay in the transcript.
func (s *Session) Stop() {
	s.cancel()
}

// Overrides adjusts a session's shape relative to the loaded configuration.
// Zero values keep the configured setting.
type Overrides struct {
	// Topic replaces the configured conversation topic.
	Topic string

	// Mode replaces the configured mode.
	Mode config.Mode

	// MaxTurns replaces the configured turn budget (casual mode).
	MaxTurns int
}

// Manager starts and tracks concurrently running sessions. All methods are
// safe for concurrent use; the sessions themselves never share mutable
// state.
type Manager struct {
	cfg       *config.Config
	providers Providers
	metrics   *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. A nil metrics parameter selects
// observe.DefaultMetrics().
func NewManager(cfg *config.Config, providers Providers, metrics *observe.Metrics) *Manager {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Manager{
		cfg:       cfg,
		providers: providers,
		metrics:   metrics,
		sessions:  make(map[string]*Session),
	}
}

// Start builds a session from the manager's configuration (with the given
// overrides applied) and runs it in the background. The returned session's
// Turns channel streams finished turns until the session ends.
func (m *Manager) Start(ctx context.Context, ov Overrides) (*Session, error) {
	cfg := *m.cfg
	if ov.Topic != "" {
		cfg.Conversation.Topic = ov.Topic
	}
	if ov.Mode != "" {
		cfg.Conversation.Mode = ov.Mode
	}
	if ov.MaxTurns != 0 {
		cfg.Conversation.MaxTurns = ov.MaxTurns
	}

	engine, err := buildEngine(&cfg, m.providers, m.metrics)
	if err != nil {
		return nil, err
	}

	mode := cfg.Conversation.Mode
	if mode == "" {
		mode = config.ModeCasual
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		info: SessionInfo{
			ID:        uuid.NewString(),
			Topic:     cfg.Conversation.Topic,
			Mode:      string(mode),
			StartedAt: time.Now().UTC(),
		},
		engine: engine,
		cancel: cancel,
		turns:  make(chan types.Turn, turnBuffer),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[s.info.ID] = s
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session started",
		"session_id", s.info.ID, "topic", s.info.Topic, "mode", s.info.Mode)

	go m.run(runCtx, s)
	return s, nil
}

// run drives one session to completion and records its outcome.
func (m *Manager) run(ctx context.Context, s *Session) {
	transcript, err := s.engine.Run(ctx, func(turn types.Turn) error {
		select {
		case s.turns <- turn:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	s.mu.Lock()
	s.transcript = transcript
	s.err = err
	s.mu.Unlock()

	close(s.turns)
	close(s.done)
	m.metrics.ActiveSessions.Add(context.Background(), -1)

	if err != nil {
		slog.Warn("session ended with error",
			"session_id", s.info.ID, "turns", len(transcript), "error", err)
		return
	}
	slog.Info("session finished",
		"session_id", s.info.ID, "turns", len(transcript))
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns metadata for all known sessions.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info)
	}
	return out
}

// Stop cancels the session with the given ID.
func (m *Manager) Stop(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("app: no session %q", id)
	}
	s.Stop()
	return nil
}

// StopAll cancels every known session. Used on server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// Remove forgets a finished session. Running sessions are stopped first.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}

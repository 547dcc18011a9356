package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/internal/conversation"
	"github.com/MrWong99/colloquy/internal/observe"
	llmmock "github.com/MrWong99/colloquy/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/colloquy/pkg/provider/tts/mock"
	"github.com/MrWong99/colloquy/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func testConfig() *config.Config {
	return &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai"},
			TTS: config.ProviderEntry{Name: "edge"},
		},
		Agents: []config.AgentConfig{
			{Name: "Ava", Personality: "curious", Voice: config.VoiceConfig{VoiceID: "en-US-JennyNeural"}},
			{Name: "Ben", Personality: "skeptical", Voice: config.VoiceConfig{VoiceID: "en-US-GuyNeural"}},
		},
		Conversation: config.ConversationConfig{
			Mode:     config.ModeCasual,
			Topic:    "tidal power",
			MaxTurns: 3,
		},
	}
}

func testManager(t *testing.T, gen *llmmock.Provider) *Manager {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return NewManager(testConfig(), Providers{LLM: gen, TTS: &ttsmock.Provider{}}, metrics)
}

func collectSession(t *testing.T, s *Session) []types.Turn {
	t.Helper()
	var turns []types.Turn
	timeout := time.After(5 * time.Second)
	for {
		select {
		case turn, ok := <-s.Turns():
			if !ok {
				return turns
			}
			turns = append(turns, turn)
		case <-timeout:
			t.Fatal("session did not finish in time")
		}
	}
}

func TestSessionRunsToCompletion(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{"Tidal power is steadier than wind."}}
	m := testManager(t, gen)

	s, err := m.Start(context.Background(), Overrides{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Info().ID == "" {
		t.Error("session has no ID")
	}
	if s.Info().Topic != "tidal power" {
		t.Errorf("topic = %q", s.Info().Topic)
	}

	turns := collectSession(t, s)
	if len(turns) != 3 {
		t.Fatalf("streamed %d turns, want 3", len(turns))
	}

	<-s.Done()
	if err := s.Err(); err != nil {
		t.Errorf("Err = %v, want nil", err)
	}
	if got := s.Transcript(); len(got) != 3 {
		t.Errorf("transcript has %d turns, want 3", len(got))
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{"An isolated little utterance."}}
	m := testManager(t, gen)

	a, err := m.Start(context.Background(), Overrides{Topic: "glass recycling", MaxTurns: 2})
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	b, err := m.Start(context.Background(), Overrides{Topic: "night trains", MaxTurns: 4})
	if err != nil {
		t.Fatalf("Start b: %v", err)
	}
	if a.Info().ID == b.Info().ID {
		t.Fatal("sessions share an ID")
	}

	turnsA := collectSession(t, a)
	turnsB := collectSession(t, b)
	if len(turnsA) != 2 {
		t.Errorf("session a streamed %d turns, want 2", len(turnsA))
	}
	if len(turnsB) != 4 {
		t.Errorf("session b streamed %d turns, want 4", len(turnsB))
	}

	if got := len(m.List()); got != 2 {
		t.Errorf("List has %d sessions, want 2", got)
	}
	if _, ok := m.Get(a.Info().ID); !ok {
		t.Error("Get(a) failed")
	}
}

func TestSessionStopCancelsRun(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{"Plenty more where that came from."}}
	m := testManager(t, gen)

	// Nobody reads Turns, so the engine fills the emit buffer and blocks.
	// Stop must unblock it and end the session with a cancellation error.
	s, err := m.Start(context.Background(), Overrides{MaxTurns: 50})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
	if err := s.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", err)
	}
	if got := len(s.Transcript()); got >= 50 {
		t.Errorf("transcript has %d turns, want fewer than the full budget", got)
	}
}

func TestGenerationFailurePreservesPartialTranscript(t *testing.T) {
	gen := &llmmock.Provider{
		Responses:    []string{"One good turn before the outage."},
		CompleteErrs: map[int]error{2: errors.New("down"), 3: errors.New("down")},
	}
	m := testManager(t, gen)

	s, err := m.Start(context.Background(), Overrides{MaxTurns: 5})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	turns := collectSession(t, s)
	<-s.Done()

	var genErr *conversation.GenerationUnavailableError
	if !errors.As(s.Err(), &genErr) {
		t.Fatalf("Err = %v, want *GenerationUnavailableError", s.Err())
	}
	if len(turns) != 2 {
		t.Errorf("streamed %d turns before the failure, want 2", len(turns))
	}
	if got := s.Transcript(); len(got) != 2 {
		t.Errorf("transcript has %d turns, want the 2 completed ones", len(got))
	}
}

func TestStartRejectsBrokenConfig(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{"irrelevant"}}
	m := testManager(t, gen)
	m.cfg.Agents = m.cfg.Agents[:1]

	if _, err := m.Start(context.Background(), Overrides{}); err == nil {
		t.Fatal("expected an error for a single-agent config")
	}
}

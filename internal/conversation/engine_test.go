package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/internal/resilience"
	"github.com/MrWong99/colloquy/internal/schedule"
	llmmock "github.com/MrWong99/colloquy/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/colloquy/pkg/provider/tts/mock"
	"github.com/MrWong99/colloquy/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var errBackend = errors.New("backend down")

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func casualScheduler(t *testing.T, maxTurns, interval int) *schedule.Scheduler {
	t.Helper()
	s, err := schedule.New(schedule.Config{
		Mode:              schedule.ModeCasual,
		Agents:            testAgents(),
		Topic:             "city gardens",
		MaxTurns:          maxTurns,
		MilestoneInterval: interval,
	})
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	return s
}

func debateScheduler(t *testing.T) *schedule.Scheduler {
	t.Helper()
	s, err := schedule.New(schedule.Config{
		Mode: schedule.ModeDebate,
		Agents: [2]types.Agent{
			{Name: "Ava", Stance: types.StanceFor},
			{Name: "Ben", Stance: types.StanceAgainst},
		},
		Topic: "city gardens",
		Plan: schedule.Plan{
			{Name: "opening", Label: "Opening", Turns: 2},
			{Name: "argument", Label: "Argument", Turns: 4},
			{Name: "closing", Label: "Closing", Turns: 2},
		},
	})
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	return s
}

func testAgents() [2]types.Agent {
	return [2]types.Agent{
		{Name: "Ava", Personality: "a curious optimist", Voice: types.VoiceProfile{ID: "en-US-JennyNeural", Provider: "edge"}},
		{Name: "Ben", Personality: "a dry skeptic", Voice: types.VoiceProfile{ID: "en-US-GuyNeural", Provider: "edge"}},
	}
}

func newEngine(t *testing.T, sched *schedule.Scheduler, gen *llmmock.Provider, synth *ttsmock.Provider) *Engine {
	t.Helper()
	e, err := New(Config{
		Agents:    testAgents(),
		Topic:     "city gardens",
		LLM:       gen,
		TTS:       synth,
		Scheduler: sched,
		Metrics:   testMetrics(t),
		Retry:     resilience.RetryConfig{Attempts: 2, Backoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunSessionToCompletion(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{
		"City gardens make neighbourhoods feel alive.",
		"Sure, but someone has to water all of that.",
		"Volunteers tend to show up more than you'd expect.",
		"Fair point, I'll give you that one.",
	}}
	synth := &ttsmock.Provider{}
	e := newEngine(t, casualScheduler(t, 4, 2), gen, synth)

	var emitted []types.Turn
	transcript, err := e.Run(context.Background(), func(turn types.Turn) error {
		emitted = append(emitted, turn)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transcript) != 4 || len(emitted) != 4 {
		t.Fatalf("transcript %d turns, emitted %d, want 4 and 4", len(transcript), len(emitted))
	}

	for i, turn := range transcript {
		if turn.Index != i {
			t.Errorf("turn %d: index = %d", i, turn.Index)
		}
		if turn.Degraded {
			t.Errorf("turn %d: unexpectedly degraded", i)
		}
		if turn.AudioDuration <= 0 {
			t.Errorf("turn %d: no audio duration", i)
		}
		if len(turn.Reveal) == 0 {
			t.Errorf("turn %d: empty reveal schedule", i)
		}
		if got := turn.Reveal.End(); got != turn.AudioDuration {
			t.Errorf("turn %d: reveal ends at %v, audio is %v", i, got, turn.AudioDuration)
		}
	}
	if transcript[0].Speaker != "Ava" || transcript[1].Speaker != "Ben" {
		t.Errorf("speakers = %q, %q; want Ava, Ben", transcript[0].Speaker, transcript[1].Speaker)
	}
	if transcript[2].Guidance == "" {
		t.Error("turn 2 missing the milestone guidance")
	}

	// The engine stays terminal after completion.
	if _, err := e.RunTurn(context.Background()); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("RunTurn after completion = %v, want ErrSessionComplete", err)
	}
}

func TestSynthesisFailureDegradesSingleTurn(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{"A perfectly good sentence about gardens."}}
	synth := &ttsmock.Provider{SynthesizeErrs: map[int]error{3: errBackend}}
	e := newEngine(t, casualScheduler(t, 6, 0), gen, synth)

	transcript, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transcript) != 6 {
		t.Fatalf("transcript has %d turns, want 6", len(transcript))
	}

	for i, turn := range transcript {
		wantDegraded := i == 3
		if turn.Degraded != wantDegraded {
			t.Errorf("turn %d: degraded = %v, want %v", i, turn.Degraded, wantDegraded)
		}
	}

	deg := transcript[3]
	if deg.Text == "" {
		t.Error("degraded turn lost its text")
	}
	if deg.Audio != nil {
		t.Error("degraded turn carries audio bytes")
	}
	if deg.AudioDuration <= 0 {
		t.Error("degraded turn has no estimated duration")
	}
	if got := deg.Reveal.End(); got != deg.AudioDuration {
		t.Errorf("degraded reveal ends at %v, estimate is %v", got, deg.AudioDuration)
	}
}

func TestGenerationFailureHaltsAndPreservesTranscript(t *testing.T) {
	// An 8-turn debate where the provider dies on turn index 5. Earlier
	// turns each take one Complete call, so call index 5 is turn 5's first
	// attempt and 6 its retry.
	gen := &llmmock.Provider{
		Responses:    []string{"A solid spoken argument about gardens."},
		CompleteErrs: map[int]error{5: errBackend, 6: errBackend},
	}
	e := newEngine(t, debateScheduler(t), gen, &ttsmock.Provider{})

	transcript, err := e.Run(context.Background(), nil)

	var genErr *GenerationUnavailableError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationUnavailableError", err)
	}
	if genErr.Turn != 5 {
		t.Errorf("failed turn = %d, want 5", genErr.Turn)
	}
	if !errors.Is(err, errBackend) {
		t.Errorf("err %v does not wrap the provider error", err)
	}
	if len(transcript) != 5 {
		t.Fatalf("transcript has %d turns, want exactly the 5 completed ones", len(transcript))
	}
	for i, turn := range transcript {
		if turn.Index != i {
			t.Errorf("turn %d: index = %d", i, turn.Index)
		}
	}
}

func TestTransientGenerationErrorIsRetried(t *testing.T) {
	gen := &llmmock.Provider{
		Responses:    []string{"Recovered nicely after the blip."},
		CompleteErrs: map[int]error{0: errBackend},
	}
	e := newEngine(t, casualScheduler(t, 1, 0), gen, &ttsmock.Provider{})

	transcript, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(transcript) != 1 {
		t.Fatalf("transcript has %d turns, want 1", len(transcript))
	}
	if calls := gen.Calls(); len(calls) != 2 {
		t.Errorf("Complete called %d times, want 2 (failure then retry)", len(calls))
	}
}

func TestEmptyResponsesReanchorThenGiveUp(t *testing.T) {
	// Every reply sanitizes to nothing; the turn burns its rounds, the
	// later prompts re-anchor to the topic, and the session halts.
	gen := &llmmock.Provider{Responses: []string{"*shrugs*"}}
	e := newEngine(t, casualScheduler(t, 4, 0), gen, &ttsmock.Provider{})

	transcript, err := e.Run(context.Background(), nil)

	var genErr *GenerationUnavailableError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationUnavailableError", err)
	}
	if genErr.Turn != 0 {
		t.Errorf("failed turn = %d, want 0", genErr.Turn)
	}
	if len(transcript) != 0 {
		t.Errorf("transcript has %d turns, want 0", len(transcript))
	}

	calls := gen.Calls()
	if len(calls) != 3 {
		t.Fatalf("Complete called %d times, want 3 rounds", len(calls))
	}
	lastReq := calls[2].Req
	lastMsg := lastReq.Messages[len(lastReq.Messages)-1]
	if !strings.Contains(lastMsg.Content, "city gardens") || !strings.Contains(lastMsg.Content, "fresh angle") {
		t.Errorf("final round not re-anchored to the topic: %q", lastMsg.Content)
	}
}

func TestCancellationNeverPartiallyAppends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gen := &llmmock.Provider{Responses: []string{"A fine spoken sentence."}}
	synth := &ttsmock.Provider{SynthesizeErr: context.Canceled}
	e := newEngine(t, casualScheduler(t, 4, 0), gen, synth)

	// First turn completes normally.
	synth.SynthesizeErr = nil
	if _, err := e.RunTurn(ctx); err != nil {
		t.Fatalf("turn 0: %v", err)
	}

	// Cancel during the second turn's synthesis.
	synth.SynthesizeErr = context.Canceled
	cancel()
	_, err := e.RunTurn(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := len(e.Transcript()); got != 1 {
		t.Errorf("transcript has %d turns after cancellation, want 1", got)
	}
}

func TestPromptAssembly(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{
		"Honestly, city gardens are basically wonderful.",
		"They do take upkeep, though.",
		"Neighbours often share that load.",
	}}
	e := newEngine(t, casualScheduler(t, 3, 2), gen, &ttsmock.Provider{})

	if _, err := e.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := gen.Calls()
	if len(calls) != 3 {
		t.Fatalf("Complete called %d times, want 3", len(calls))
	}

	// Turn 0: topic seed, persona in the system prompt.
	first := calls[0].Req
	if !strings.Contains(first.SystemPrompt, "Ava") || !strings.Contains(first.SystemPrompt, "curious optimist") {
		t.Errorf("system prompt missing persona: %q", first.SystemPrompt)
	}
	if len(first.Messages) != 1 || !strings.Contains(first.Messages[0].Content, "city gardens") {
		t.Errorf("turn 0 prompt not seeded with the topic: %+v", first.Messages)
	}

	// Turn 1: Ben sees Ava's sanitized turn as a user message.
	second := calls[1].Req
	if len(second.Messages) != 1 {
		t.Fatalf("turn 1 prompt has %d messages, want 1", len(second.Messages))
	}
	got := second.Messages[0]
	if got.Role != "user" || got.Name != "Ava" {
		t.Errorf("turn 1 history message = role %q name %q, want user/Ava", got.Role, got.Name)
	}
	if strings.Contains(got.Content, "Honestly") || strings.Contains(got.Content, "basically") {
		t.Errorf("raw filler leaked into history: %q", got.Content)
	}

	// Turn 2: milestone guidance is the final user message, history includes
	// Ava's own turn as assistant.
	third := calls[2].Req
	last := third.Messages[len(third.Messages)-1]
	if last.Role != "user" || !strings.Contains(last.Content, "city gardens") {
		t.Errorf("turn 2 missing guidance message: %+v", last)
	}
	var sawAssistant bool
	for _, m := range third.Messages[:len(third.Messages)-1] {
		if m.Role == "assistant" && m.Name == "Ava" {
			sawAssistant = true
		}
	}
	if !sawAssistant {
		t.Error("turn 2 history lacks Ava's own turn as an assistant message")
	}
}

func TestHistoryWindowBounded(t *testing.T) {
	gen := &llmmock.Provider{Responses: []string{"Another fine sentence about gardens."}}
	e := newEngine(t, casualScheduler(t, 10, 0), gen, &ttsmock.Provider{})
	e.historyTurns = 2

	if _, err := e.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := gen.Calls()
	lastReq := calls[len(calls)-1].Req
	if len(lastReq.Messages) > 2 {
		t.Errorf("final prompt carries %d history messages, want at most 2", len(lastReq.Messages))
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected a config error")
	}
	for _, want := range []string{"generation provider", "synthesis provider", "scheduler", "topic"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

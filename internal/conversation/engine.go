// Package conversation implements the engine that drives one spoken dialogue
// session end-to-end.
//
// Each turn the engine asks the scheduler what happens next, assembles a
// prompt from the active speaker's persona and the sanitized trailing
// history, calls the generation collaborator, sanitizes the reply, renders it
// with the synthesis collaborator, plans the text reveal schedule against the
// audio duration, and appends the finished turn to the transcript.
//
// Failure policy: a synthesis failure degrades the single turn to text-only
// with an estimated reveal duration and the session continues; a generation
// failure past the retry budget halts the session with
// [GenerationUnavailableError], preserving the transcript accumulated so
// far. A cancelled turn is never partially appended.
//
// An Engine owns one session and must be driven from a single goroutine.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/internal/resilience"
	"github.com/MrWong99/colloquy/internal/sanitize"
	"github.com/MrWong99/colloquy/internal/schedule"
	"github.com/MrWong99/colloquy/internal/syncplan"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
	"github.com/MrWong99/colloquy/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// minResponseRunes is the shortest sanitized reply that counts as a usable
// utterance. Anything shorter is treated as a failed generation attempt that
// does not consume the turn.
const minResponseRunes = 3

// reanchorAfter is the number of consecutive unusable replies after which
// the prompt is re-anchored to the session topic with a fresh-angle
// instruction.
const reanchorAfter = 2

// maxGenerationRounds bounds how many usable-reply rounds one turn may burn
// before the session gives up. Each round may itself retry transport errors
// per the retry config.
const maxGenerationRounds = 3

// Config configures an [Engine].
type Config struct {
	// Agents are the session's two participants.
	Agents [2]types.Agent

	// Topic seeds the conversation and anchors guidance templates.
	Topic string

	// LLM is the generation collaborator. Required.
	LLM llm.Provider

	// TTS is the synthesis collaborator. Required.
	TTS tts.Provider

	// Scheduler decides turn order, phases, and guidance. Required.
	Scheduler *schedule.Scheduler

	// Sanitizer rewrites replies before storage and synthesis. Nil selects
	// sanitize.Default().
	Sanitizer *sanitize.Sanitizer

	// Planner builds reveal schedules. Nil selects syncplan.New().
	Planner *syncplan.Planner

	// Metrics receives per-turn instrumentation. Nil selects
	// observe.DefaultMetrics().
	Metrics *observe.Metrics

	// HistoryTurns bounds how many trailing turns re-enter the prompt.
	// Default: 6. Negative disables the bound.
	HistoryTurns int

	// HistoryTokens optionally bounds the prompt history by token count,
	// trimming oldest turns first. Zero disables the bound.
	HistoryTokens int

	// Temperature and MaxTokens are passed through to the generation
	// collaborator. Zero values use provider defaults.
	Temperature float64
	MaxTokens   int

	// GenerationTimeout bounds one generation attempt. Default: 60s.
	GenerationTimeout time.Duration

	// SynthesisTimeout bounds one synthesis call. Default: 30s.
	SynthesisTimeout time.Duration

	// Retry controls transport-error retries for generation calls.
	// The zero value retries once with backoff.
	Retry resilience.RetryConfig
}

// Engine drives one session. Not safe for concurrent use.
type Engine struct {
	agents     [2]types.Agent
	topic      string
	llm        llm.Provider
	tts        tts.Provider
	sched      *schedule.Scheduler
	sanitizer  *sanitize.Sanitizer
	planner    *syncplan.Planner
	metrics    *observe.Metrics
	log        *slog.Logger
	retry      resilience.RetryConfig
	genTimeout time.Duration
	ttsTimeout time.Duration

	historyTurns  int
	historyTokens int
	temperature   float64
	maxTokens     int

	transcript []types.Turn

	// pending holds a scheduled step whose turn has not completed, so a
	// failed or cancelled turn is retried instead of skipped.
	pending *schedule.Step

	// emptyStreak counts consecutive unusable replies for the current turn.
	emptyStreak int
}

// New validates cfg and creates an Engine.
func New(cfg Config) (*Engine, error) {
	var errs []error
	if cfg.LLM == nil {
		errs = append(errs, errors.New("generation provider is required"))
	}
	if cfg.TTS == nil {
		errs = append(errs, errors.New("synthesis provider is required"))
	}
	if cfg.Scheduler == nil {
		errs = append(errs, errors.New("scheduler is required"))
	}
	if cfg.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("conversation: invalid config: %w", errors.Join(errs...))
	}

	e := &Engine{
		agents:        cfg.Agents,
		topic:         cfg.Topic,
		llm:           cfg.LLM,
		tts:           cfg.TTS,
		sched:         cfg.Scheduler,
		sanitizer:     cfg.Sanitizer,
		planner:       cfg.Planner,
		metrics:       cfg.Metrics,
		log:           slog.Default().With("component", "conversation"),
		retry:         cfg.Retry,
		genTimeout:    cfg.GenerationTimeout,
		ttsTimeout:    cfg.SynthesisTimeout,
		historyTurns:  cfg.HistoryTurns,
		historyTokens: cfg.HistoryTokens,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
	}
	if e.sanitizer == nil {
		e.sanitizer = sanitize.Default()
	}
	if e.planner == nil {
		e.planner = syncplan.New()
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.genTimeout <= 0 {
		e.genTimeout = 60 * time.Second
	}
	if e.ttsTimeout <= 0 {
		e.ttsTimeout = 30 * time.Second
	}
	if e.historyTurns == 0 {
		e.historyTurns = 6
	}
	return e, nil
}

// RunTurn produces the next turn of the session.
//
// It returns [ErrSessionComplete] once the scheduler is exhausted. On a
// generation failure the turn slot is kept, the transcript is untouched, and
// the error is a [*GenerationUnavailableError] (or the context error when the
// caller cancelled). A synthesis failure does not fail the turn: the turn is
// returned text-only with Degraded set and an estimated duration.
func (e *Engine) RunTurn(ctx context.Context) (*types.Turn, error) {
	step, ok := e.nextStep()
	if !ok {
		return nil, ErrSessionComplete
	}

	start := time.Now()
	speaker := e.agentByName(step.Speaker)

	raw, text, err := e.generate(ctx, speaker, step)
	if err != nil {
		return nil, err
	}

	turn := types.Turn{
		Index:      step.Index,
		Speaker:    step.Speaker,
		Phase:      step.Phase,
		PhaseLabel: step.PhaseLabel,
		RawText:    raw,
		Text:       text,
		Guidance:   step.Guidance,
	}

	res, synthErr := e.synthesize(ctx, text, speaker.Voice)
	switch {
	case synthErr != nil && ctx.Err() != nil:
		// Cancelled mid-synthesis: keep the slot, append nothing.
		return nil, ctx.Err()
	case synthErr != nil:
		turn.Degraded = true
		turn.AudioDuration = e.planner.EstimateDuration(text)
		e.metrics.DegradedTurns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("speaker", step.Speaker),
		))
		e.log.Warn("synthesis failed, continuing text-only",
			"turn", step.Index, "speaker", step.Speaker, "error", synthErr)
	default:
		turn.Audio = res.Audio
		turn.AudioFormat = res.Format
		turn.AudioDuration = res.Duration
		if turn.AudioDuration <= 0 {
			turn.AudioDuration = e.planner.EstimateDuration(text)
		}
	}

	turn.Reveal = e.planner.Plan(text, turn.AudioDuration)
	turn.CreatedAt = time.Now()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.transcript = append(e.transcript, turn)
	e.pending = nil

	e.metrics.RecordTurn(ctx, turn.Speaker, turn.Phase)
	e.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	e.log.Info("turn completed",
		"turn", turn.Index, "speaker", turn.Speaker, "phase", turn.Phase,
		"chars", len(turn.Text), "audio", turn.AudioDuration, "degraded", turn.Degraded)
	return &turn, nil
}

// Run drives the session to completion, emitting each finished turn to the
// presentation layer. It always returns the transcript accumulated so far,
// alongside any fatal error.
func (e *Engine) Run(ctx context.Context, emit func(types.Turn) error) ([]types.Turn, error) {
	for {
		turn, err := e.RunTurn(ctx)
		if errors.Is(err, ErrSessionComplete) {
			e.log.Info("session complete", "turns", len(e.transcript))
			return e.Transcript(), nil
		}
		if err != nil {
			return e.Transcript(), err
		}
		if emit != nil {
			if err := emit(*turn); err != nil {
				return e.Transcript(), fmt.Errorf("conversation: emit turn %d: %w", turn.Index, err)
			}
		}
	}
}

// Transcript returns a copy of the turns completed so far.
func (e *Engine) Transcript() []types.Turn {
	out := make([]types.Turn, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// nextStep returns the step for the upcoming turn, reusing a pending step
// left by a failed or cancelled attempt so the turn slot is not lost.
func (e *Engine) nextStep() (schedule.Step, bool) {
	if e.pending != nil {
		return *e.pending, true
	}
	step, ok := e.sched.Next()
	if !ok {
		return schedule.Step{}, false
	}
	e.pending = &step
	return step, true
}

// generate obtains a usable sanitized utterance for the step. Transport
// errors are retried per the retry config; replies that sanitize to nothing
// burn a round without consuming the turn, and after reanchorAfter unusable
// rounds the prompt is re-anchored to the topic.
func (e *Engine) generate(ctx context.Context, speaker types.Agent, step schedule.Step) (raw, text string, err error) {
	for round := 0; round < maxGenerationRounds; round++ {
		req := e.buildRequest(speaker, step, e.emptyStreak >= reanchorAfter)

		genStart := time.Now()
		resp, genErr := resilience.Retry(ctx, e.retry, "generate",
			func(ctx context.Context) (*llm.CompletionResponse, error) {
				callCtx, cancel := context.WithTimeout(ctx, e.genTimeout)
				defer cancel()
				return e.llm.Complete(callCtx, req)
			})
		e.metrics.GenerationDuration.Record(ctx, time.Since(genStart).Seconds())

		if genErr != nil {
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			e.metrics.RecordProviderError(ctx, "llm", "generation")
			return "", "", &GenerationUnavailableError{
				Turn:     step.Index,
				Attempts: max(e.retry.Attempts, 2),
				Err:      genErr,
			}
		}

		raw = resp.Content
		text = e.sanitizer.Sanitize(raw)
		if len([]rune(text)) >= minResponseRunes {
			e.emptyStreak = 0
			return raw, text, nil
		}

		e.emptyStreak++
		e.log.Warn("unusable generation, retrying turn",
			"turn", step.Index, "speaker", speaker.Name,
			"streak", e.emptyStreak, "raw_len", len(raw))
	}

	e.metrics.RecordProviderError(ctx, "llm", "empty_response")
	return "", "", &GenerationUnavailableError{
		Turn:     step.Index,
		Attempts: maxGenerationRounds,
	}
}

// synthesize renders text with the speaker's voice under the synthesis
// timeout.
func (e *Engine) synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.ttsTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.tts.Synthesize(callCtx, text, voice)
	e.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, voice.Provider, "synthesis")
		return nil, err
	}
	return res, nil
}

// agentByName resolves a scheduler speaker name to its agent.
func (e *Engine) agentByName(name string) types.Agent {
	if e.agents[0].Name == name {
		return e.agents[0]
	}
	return e.agents[1]
}

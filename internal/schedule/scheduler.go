// Package schedule decides, turn by turn, whose utterance comes next, which
// phase it belongs to, and what steering guidance (if any) to inject.
//
// The scheduler is a small state machine over
// {NotStarted, InPhase, AwaitingNext, Complete}. It is deterministic: the
// same configuration always produces the same sequence of steps, so the
// whole dialogue shape is unit-testable without any collaborator. All
// configuration problems — an empty debate plan, mismatched turn totals —
// are rejected at construction, never mid-run.
//
// The scheduler is not safe for concurrent use; a session drives it from a
// single goroutine (single-writer discipline).
package schedule

import (
	"fmt"
	"strings"

	"github.com/MrWong99/colloquy/pkg/types"
)

// Mode selects the conversation structure.
type Mode string

const (
	// ModeCasual alternates speakers freely with milestone guidance injection.
	ModeCasual Mode = "casual"

	// ModeDebate follows a fixed phase plan with stance-based speaker order.
	ModeDebate Mode = "debate"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeCasual || m == ModeDebate
}

// State is the scheduler's lifecycle state.
type State int

const (
	// NotStarted means no step has been requested yet.
	NotStarted State = iota

	// InPhase means a debate session is inside a plan phase.
	InPhase

	// AwaitingNext means a casual session is between turns.
	AwaitingNext

	// Complete is terminal: all configured turns have been scheduled.
	// Repeated queries after completion keep returning a stable
	// no-more-turns signal rather than erroring.
	Complete
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InPhase:
		return "in-phase"
	case AwaitingNext:
		return "awaiting-next"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FreePhase is the phase name used for every turn in casual mode.
const FreePhase = "free"

// DefaultAngles is the built-in rotation of topic-steering guidance used in
// casual mode. The "{topic}" placeholder is substituted with the session
// topic at injection time.
var DefaultAngles = []string{
	"Regarding '{topic}': what are the practical challenges or limitations?",
	"Back to '{topic}': how might this evolve in the next few years?",
	"Focusing on '{topic}': what should people actually do or consider?",
}

// Step describes what happens on one turn.
type Step struct {
	// Index is the zero-based turn index this step schedules.
	Index int

	// Speaker is the name of the agent that speaks this turn.
	Speaker string

	// Phase and PhaseLabel identify the current phase (FreePhase in casual
	// mode).
	Phase string

	// PhaseLabel is the display form of Phase.
	PhaseLabel string

	// Guidance is the steering prompt to inject before this turn, or empty.
	Guidance string

	// IsFinal marks the session's last scheduled turn.
	IsFinal bool
}

// Config configures a Scheduler.
type Config struct {
	// Mode selects casual or debate structure.
	Mode Mode

	// Agents are the two participants in speaking-slot order: in casual mode
	// Agents[0] takes even turns and Agents[1] odd turns; in debate mode the
	// slot order is derived from stances instead.
	Agents [2]types.Agent

	// Topic is substituted into guidance and phase prompt templates.
	Topic string

	// MaxTurns is the total turn budget. In debate mode it must equal the
	// plan total (zero means derive it from the plan).
	MaxTurns int

	// MilestoneInterval is the casual-mode guidance interval K: guidance is
	// injected on every turn index that is a positive multiple of K. Zero
	// disables injection.
	MilestoneInterval int

	// Angles overrides DefaultAngles. Nil selects the default rotation.
	Angles []string

	// Plan is the debate phase plan. Ignored in casual mode.
	Plan Plan
}

// Scheduler sequences the turns of one session.
type Scheduler struct {
	mode   Mode
	agents [2]types.Agent
	topic  string
	total  int

	// casual mode
	interval int
	angles   []string
	angleIdx int

	// debate mode
	plan Plan

	turn int
	done bool
}

// New validates cfg and creates a Scheduler.
//
// Configuration errors — an invalid mode, a debate without a valid phase
// plan, a turn budget that disagrees with the plan total — are reported
// here, at session start, never mid-run.
func New(cfg Config) (*Scheduler, error) {
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("schedule: mode %q is invalid; valid values: casual, debate", cfg.Mode)
	}
	if cfg.Agents[0].Name == "" || cfg.Agents[1].Name == "" {
		return nil, fmt.Errorf("schedule: both agents must have names")
	}
	if cfg.Agents[0].Name == cfg.Agents[1].Name {
		return nil, fmt.Errorf("schedule: agent names must be distinct, both are %q", cfg.Agents[0].Name)
	}

	s := &Scheduler{
		mode:     cfg.Mode,
		agents:   cfg.Agents,
		topic:    cfg.Topic,
		interval: cfg.MilestoneInterval,
		angles:   cfg.Angles,
		plan:     cfg.Plan,
	}
	if s.angles == nil {
		s.angles = DefaultAngles
	}

	switch cfg.Mode {
	case ModeCasual:
		if cfg.MaxTurns <= 0 {
			return nil, fmt.Errorf("schedule: max turns must be positive, got %d", cfg.MaxTurns)
		}
		if cfg.MilestoneInterval < 0 {
			return nil, fmt.Errorf("schedule: milestone interval must not be negative, got %d", cfg.MilestoneInterval)
		}
		s.total = cfg.MaxTurns

	case ModeDebate:
		if err := cfg.Plan.Validate(); err != nil {
			return nil, fmt.Errorf("schedule: invalid phase plan: %w", err)
		}
		planTotal := cfg.Plan.TotalTurns()
		if cfg.MaxTurns != 0 && cfg.MaxTurns != planTotal {
			return nil, fmt.Errorf("schedule: max turns %d disagrees with phase plan total %d", cfg.MaxTurns, planTotal)
		}
		if err := validateStances(cfg.Agents); err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
		s.total = planTotal
	}

	return s, nil
}

// validateStances checks that a debate has exactly one FOR and one AGAINST
// agent.
func validateStances(agents [2]types.Agent) error {
	stances := map[types.Stance]string{}
	for _, a := range agents {
		if a.Stance != types.StanceFor && a.Stance != types.StanceAgainst {
			return fmt.Errorf("debate agent %q must have stance for or against, got %q", a.Name, a.Stance)
		}
		if other, ok := stances[a.Stance]; ok {
			return fmt.Errorf("agents %q and %q share stance %q; a debate needs one for and one against", other, a.Name, a.Stance)
		}
		stances[a.Stance] = a.Name
	}
	return nil
}

// Next returns the step for the upcoming turn and advances the scheduler.
// It returns ok=false once all configured turns have been scheduled;
// Complete is terminal and further calls keep returning ok=false.
func (s *Scheduler) Next() (Step, bool) {
	if s.done || s.turn >= s.total {
		s.done = true
		return Step{}, false
	}

	var step Step
	switch s.mode {
	case ModeCasual:
		step = s.casualStep()
	case ModeDebate:
		step = s.debateStep()
	}

	s.turn++
	if s.turn >= s.total {
		s.done = true
	}
	return step, true
}

// casualStep schedules one free-conversation turn: strict parity speaker
// alternation, with rotating-angle guidance on milestone turns.
func (s *Scheduler) casualStep() Step {
	step := Step{
		Index:      s.turn,
		Speaker:    s.agents[s.turn%2].Name,
		Phase:      FreePhase,
		PhaseLabel: "Free conversation",
		IsFinal:    s.turn == s.total-1,
	}

	if s.interval > 0 && s.turn > 0 && s.turn%s.interval == 0 {
		step.Guidance = s.expand(s.angles[s.angleIdx%len(s.angles)])
		s.angleIdx++
	}

	return step
}

// debateStep schedules one debate turn from the phase plan. Within a phase
// the opening stance takes even offsets and the opposing stance odd offsets.
func (s *Scheduler) debateStep() Step {
	pi := s.plan.phaseIndexAt(s.turn)
	phase := s.plan[pi]
	offset := s.turn - s.plan.phaseStart(pi)

	stance := phase.opens()
	if offset%2 == 1 {
		stance = opposite(stance)
	}

	step := Step{
		Index:      s.turn,
		Speaker:    s.agentByStance(stance).Name,
		Phase:      phase.Name,
		PhaseLabel: phase.Label,
		IsFinal:    s.turn == s.total-1,
	}
	if offset == 0 && phase.Prompt != "" {
		step.Guidance = s.expand(phase.Prompt)
	}
	return step
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	switch {
	case s.done:
		return Complete
	case s.turn == 0:
		return NotStarted
	case s.mode == ModeDebate:
		return InPhase
	default:
		return AwaitingNext
	}
}

// PhaseIndex returns the index of the phase the next turn belongs to, or -1
// outside debate mode or after completion.
func (s *Scheduler) PhaseIndex() int {
	if s.mode != ModeDebate || s.done {
		return -1
	}
	return s.plan.phaseIndexAt(s.turn)
}

// TotalTurns returns the total number of turns this scheduler will produce.
func (s *Scheduler) TotalTurns() int {
	return s.total
}

// expand substitutes the session topic into a guidance template.
func (s *Scheduler) expand(template string) string {
	return strings.ReplaceAll(template, "{topic}", s.topic)
}

// agentByStance returns the agent holding the given stance. Stance coverage
// is validated at construction.
func (s *Scheduler) agentByStance(st types.Stance) types.Agent {
	if s.agents[0].Stance == st {
		return s.agents[0]
	}
	return s.agents[1]
}

// opposite flips a debate stance.
func opposite(st types.Stance) types.Stance {
	if st == types.StanceFor {
		return types.StanceAgainst
	}
	return types.StanceFor
}

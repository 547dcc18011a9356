package schedule

import (
	"errors"
	"fmt"

	"github.com/MrWong99/colloquy/pkg/types"
)

// Phase is one named segment of a structured debate.
type Phase struct {
	// Name identifies the phase (e.g., "opening", "argument", "rebuttal",
	// "closing"). Used in Turn records and tests.
	Name string

	// Label is the human-readable form shown by the presentation layer
	// (e.g., "Opening statements").
	Label string

	// Turns is the number of turns in this phase. Must be positive.
	Turns int

	// Opens selects which stance speaks first within the phase. Empty means
	// StanceFor, the conventional default. A rebuttal phase typically sets
	// StanceAgainst.
	Opens types.Stance

	// Prompt is an optional instruction injected on the phase's first turn
	// (e.g., "Present your opening position on '{topic}'."). The "{topic}"
	// placeholder is substituted with the session topic.
	Prompt string
}

// opens resolves the phase's opening stance, applying the FOR default.
func (p Phase) opens() types.Stance {
	if p.Opens == types.StanceNone {
		return types.StanceFor
	}
	return p.Opens
}

// Plan is the ordered sequence of phases for one debate. Phase boundaries are
// turn-index cut points, computed once at session start and never recomputed
// mid-session.
type Plan []Phase

// TotalTurns returns the sum of per-phase turn counts.
func (p Plan) TotalTurns() int {
	total := 0
	for _, ph := range p {
		total += ph.Turns
	}
	return total
}

// Validate checks that the plan is coherent. It returns a joined error
// listing all problems found.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return errors.New("phase plan is empty")
	}
	var errs []error
	seen := make(map[string]int, len(p))
	for i, ph := range p {
		prefix := fmt.Sprintf("phases[%d]", i)
		if ph.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[ph.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of phases[%d]", prefix, ph.Name, prev))
			}
			seen[ph.Name] = i
		}
		if ph.Turns <= 0 {
			errs = append(errs, fmt.Errorf("%s.turns must be positive, got %d", prefix, ph.Turns))
		}
		if !ph.Opens.IsValid() {
			errs = append(errs, fmt.Errorf("%s.opens %q is invalid; valid values: for, against", prefix, ph.Opens))
		}
	}
	return errors.Join(errs...)
}

// phaseIndexAt returns the index of the phase containing the given turn
// index, or -1 when the turn lies past the plan total.
func (p Plan) phaseIndexAt(turn int) int {
	boundary := 0
	for i, ph := range p {
		boundary += ph.Turns
		if turn < boundary {
			return i
		}
	}
	return -1
}

// phaseStart returns the turn index at which phase i begins.
func (p Plan) phaseStart(i int) int {
	start := 0
	for _, ph := range p[:i] {
		start += ph.Turns
	}
	return start
}

// DefaultDebatePlan returns the conventional opening/argument/rebuttal/closing
// structure for a debate of eight turns.
func DefaultDebatePlan() Plan {
	return Plan{
		{Name: "opening", Label: "Opening statements", Turns: 2,
			Prompt: "Present your opening position on '{topic}' in two or three spoken sentences."},
		{Name: "argument", Label: "Arguments", Turns: 2,
			Prompt: "Make your strongest concrete argument about '{topic}'."},
		{Name: "rebuttal", Label: "Rebuttals", Turns: 2, Opens: types.StanceAgainst,
			Prompt: "Directly rebut your opponent's strongest point about '{topic}'."},
		{Name: "closing", Label: "Closing statements", Turns: 2,
			Prompt: "Give your closing statement on '{topic}'."},
	}
}

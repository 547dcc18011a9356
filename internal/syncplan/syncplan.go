// Package syncplan builds text reveal schedules that pace on-screen text
// against spoken audio.
//
// Given an utterance and the duration of its synthesized audio, the planner
// maps rune offsets in the text to timestamps so a presenter can reveal the
// transcript in chunks roughly as the words are spoken. The mapping is
// proportional to text length but weighted at punctuation, where speech
// naturally pauses.
package syncplan

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/colloquy/pkg/types"
)

// Planner turns utterances into reveal schedules.
type Planner struct {
	chunkRunes  int
	pauseWeight float64
	wpm         float64
}

// Option configures a Planner.
type Option func(*Planner)

// WithChunkSize sets the target reveal-chunk size in runes. Smaller chunks
// make the reveal smoother at the cost of more schedule points.
func WithChunkSize(runes int) Option {
	return func(p *Planner) {
		if runes > 0 {
			p.chunkRunes = runes
		}
	}
}

// WithPauseWeight sets the extra weight a sentence-ending punctuation mark
// contributes, expressed as a multiple of one rune. Zero disables pause
// weighting.
func WithPauseWeight(w float64) Option {
	return func(p *Planner) {
		if w >= 0 {
			p.pauseWeight = w
		}
	}
}

// WithWordsPerMinute sets the speaking rate used by EstimateDuration.
func WithWordsPerMinute(wpm float64) Option {
	return func(p *Planner) {
		if wpm > 0 {
			p.wpm = wpm
		}
	}
}

// New creates a Planner. Defaults: 24-rune chunks, pause weight 6,
// 150 words per minute.
func New(opts ...Option) *Planner {
	p := &Planner{
		chunkRunes:  24,
		pauseWeight: 6,
		wpm:         150,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan builds a reveal schedule for text spoken over duration.
//
// The returned schedule is strictly increasing in both offset and time,
// starts after zero, and its final point lands exactly at duration with the
// text's rune count as offset. Offsets count runes, not bytes, matching
// [types.RevealPoint]. Empty text or a non-positive duration yields a single
// immediate point revealing everything at once.
func (p *Planner) Plan(text string, duration time.Duration) types.RevealSchedule {
	if text == "" {
		return nil
	}
	if duration <= 0 {
		return types.RevealSchedule{{Offset: utf8.RuneCountInString(text), At: 0}}
	}

	cuts := p.cutOffsets(text)
	weights := p.cumulativeWeights(text)
	totalWeight := weights[len(weights)-1]
	if totalWeight <= 0 {
		return types.RevealSchedule{{Offset: utf8.RuneCountInString(text), At: duration}}
	}

	sched := make(types.RevealSchedule, 0, len(cuts))
	lastAt := time.Duration(-1)
	for _, cut := range cuts {
		at := time.Duration(float64(duration) * weights[cut] / totalWeight)
		// Keep timestamps strictly increasing even when weighting rounds
		// two cuts onto the same instant.
		if at <= lastAt {
			at = lastAt + time.Millisecond
			if at > duration {
				at = duration
			}
		}
		sched = append(sched, types.RevealPoint{Offset: cut, At: at})
		lastAt = at
	}

	// The terminal point always lands at the audio end.
	sched[len(sched)-1].At = duration
	return sched
}

// EstimateDuration predicts how long text takes to speak at the planner's
// configured rate. It is the fallback when a synthesizer reports no timing.
func (p *Planner) EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / p.wpm * float64(time.Minute))
}

// cutOffsets chooses the rune offsets at which text is revealed. Cuts land
// on whitespace boundaries near multiples of the chunk size, and always
// include the text's rune count.
func (p *Planner) cutOffsets(text string) []int {
	var cuts []int
	pos := 0
	runesSince := 0
	lastSpace := -1
	for _, r := range text {
		if unicode.IsSpace(r) {
			lastSpace = pos
		}
		pos++
		runesSince++
		if runesSince >= p.chunkRunes && lastSpace > 0 {
			if len(cuts) == 0 || lastSpace > cuts[len(cuts)-1] {
				cuts = append(cuts, lastSpace)
				runesSince = 0
			}
		}
	}
	if len(cuts) == 0 || cuts[len(cuts)-1] != pos {
		cuts = append(cuts, pos)
	}
	return cuts
}

// cumulativeWeights returns, for every rune offset 0..runeCount, the
// accumulated speaking weight up to that offset. Each rune weighs 1;
// sentence-ending punctuation additionally weighs pauseWeight, and commas
// half of it.
func (p *Planner) cumulativeWeights(text string) []float64 {
	weights := make([]float64, 1, utf8.RuneCountInString(text)+1)
	acc := 0.0
	for _, r := range text {
		w := 1.0
		switch r {
		case '.', '!', '?':
			w += p.pauseWeight
		case ',', ';', ':':
			w += p.pauseWeight / 2
		}
		acc += w
		weights = append(weights, acc)
	}
	return weights
}

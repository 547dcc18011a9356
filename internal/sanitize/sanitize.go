// Package sanitize rewrites recorded utterances before they re-enter a
// model's context or reach the listener. Small conversational models pad
// their output with filler ("honestly", "you know", trailing tag questions)
// and, when repeated back as history, the filler compounds until the dialogue
// collapses into pattern echo. The sanitizer strips a configured set of
// filler phrases, removes stage-direction artifacts (*laughs*, [pauses],
// (sighs)), normalises whitespace and punctuation, and optionally trims a
// trailing incomplete sentence left behind by a token budget cut.
//
// Sanitize is a pure function of its input and the configured rules: it never
// errors, it is idempotent, and it never increases text length.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultFillers is the built-in filler phrase list. Each entry is removed
// wherever it appears as a whole word or phrase, case-insensitively.
var DefaultFillers = []string{
	"honestly",
	"seriously",
	"literally",
	"really",
	"actually",
	"basically",
	"you know",
	"I mean",
	"kinda",
	"I think",
	"probably",
}

// DefaultTagQuestions lists trailing tag questions rewritten to a full stop.
var DefaultTagQuestions = []string{
	"right?",
	"isn't it?",
	"don't you think?",
}

// Config controls which rewrites a Sanitizer applies.
type Config struct {
	// Fillers lists filler words/phrases removed from the text. Matching is
	// case-insensitive and respects word boundaries. Nil selects
	// DefaultFillers; use an empty non-nil slice to disable filler removal.
	Fillers []string

	// TagQuestions lists trailing tag questions (with their leading comma)
	// rewritten to a full stop. Nil selects DefaultTagQuestions.
	TagQuestions []string

	// TrimIncomplete trims a trailing incomplete sentence when the text does
	// not end with terminal punctuation. The trim stops at the last complete
	// sentence boundary; if no complete sentence exists, the partial text is
	// kept as-is rather than discarded.
	TrimIncomplete bool
}

// Sanitizer applies a fixed rule set to utterance text.
// A Sanitizer is immutable after construction and safe for concurrent use.
type Sanitizer struct {
	fillers        *regexp.Regexp // nil when the filler list is empty
	tags           *regexp.Regexp // nil when the tag list is empty
	trimIncomplete bool
}

// Shared rewrite patterns, compiled once.
var (
	// Stage directions the model was told not to emit but emits anyway.
	reStarAction    = regexp.MustCompile(`\*[^*]*\*`)
	reParenTone     = regexp.MustCompile(`\([^)]*\)`)
	reBracketAction = regexp.MustCompile(`\[[^\]]*\]`)

	// Discourse-marker opener ("okay, so ...") small models lean on
	// between turns.
	reOkaySo = regexp.MustCompile(`(?i)\b(?:okay|ok),?\s+so\b,?\s*`)

	reSpaceRun        = regexp.MustCompile(`\s+`)
	reSpaceBeforePunc = regexp.MustCompile(`\s+([.,!?;:])`)
	reDupPunc         = regexp.MustCompile(`([.,!?])[.,!?]+`)
	reLeadingPunc     = regexp.MustCompile(`^[\s,.]+`)
	reOrphanComma     = regexp.MustCompile(`,\s*([.!?])`)
)

// New creates a Sanitizer from cfg.
func New(cfg Config) *Sanitizer {
	fillers := cfg.Fillers
	if fillers == nil {
		fillers = DefaultFillers
	}
	tags := cfg.TagQuestions
	if tags == nil {
		tags = DefaultTagQuestions
	}

	s := &Sanitizer{trimIncomplete: cfg.TrimIncomplete}
	if len(fillers) > 0 {
		alts := make([]string, len(fillers))
		for i, f := range fillers {
			alts[i] = regexp.QuoteMeta(f)
		}
		// Trailing ",? ?" swallows the comma and space that usually follow a
		// dropped filler ("honestly, it works" → "it works").
		s.fillers = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, `|`) + `)\b,?\s*`)
	}
	if len(tags) > 0 {
		alts := make([]string, len(tags))
		for i, q := range tags {
			alts[i] = regexp.QuoteMeta(q)
		}
		s.tags = regexp.MustCompile(`(?i),?\s*\b(?:` + strings.Join(alts, `|`) + `)\s*$`)
	}
	return s
}

// Default returns a Sanitizer with the built-in rule set and incomplete
// sentence trimming enabled.
func Default() *Sanitizer {
	return New(Config{TrimIncomplete: true})
}

// Sanitize returns the cleaned form of text. It never returns a string longer
// than its input and sanitizing an already-sanitized string is a no-op.
func (s *Sanitizer) Sanitize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	out := text

	// Stage directions first, so fillers inside them don't leave fragments.
	out = reStarAction.ReplaceAllString(out, " ")
	out = reParenTone.ReplaceAllString(out, " ")
	out = reBracketAction.ReplaceAllString(out, " ")

	if s.tags != nil {
		out = s.tags.ReplaceAllString(out, ".")
	}
	if s.fillers != nil {
		out = s.fillers.ReplaceAllString(out, "")
	}
	out = reOkaySo.ReplaceAllString(out, "")

	// Whitespace and punctuation normalisation.
	out = reSpaceRun.ReplaceAllString(out, " ")
	out = reSpaceBeforePunc.ReplaceAllString(out, "$1")
	out = reOrphanComma.ReplaceAllString(out, "$1")
	out = reDupPunc.ReplaceAllString(out, "$1")
	out = reLeadingPunc.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)

	if s.trimIncomplete {
		out = trimIncompleteSentence(out)
	}

	return capitalize(out)
}

// trimIncompleteSentence drops a trailing sentence fragment when the text was
// cut short by a token budget. If the text already ends at a sentence
// boundary, or contains no complete sentence at all, it is returned unchanged.
func trimIncompleteSentence(text string) string {
	if text == "" {
		return ""
	}
	if isTerminal(rune(text[len(text)-1])) {
		return text
	}
	last := strings.LastIndexAny(text, ".!?")
	if last < 0 {
		// No complete sentence to fall back to; keep the partial text.
		return text
	}
	return strings.TrimSpace(text[:last+1])
}

// isTerminal reports whether r ends a sentence.
func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// capitalize upper-cases the first letter so that filler removal at the start
// of an utterance ("honestly, it depends" → "It depends") reads naturally.
func capitalize(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// Package types defines the shared types used across all colloquy packages.
//
// These types form the lingua franca between providers, the scheduler, the
// sync planner, and the conversation engine. They are intentionally minimal —
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// Stance is an agent's position in a structured debate.
type Stance string

const (
	// StanceFor argues in favour of the motion.
	StanceFor Stance = "for"

	// StanceAgainst argues against the motion.
	StanceAgainst Stance = "against"

	// StanceNone is used in casual (free conversation) mode.
	StanceNone Stance = ""
)

// IsValid reports whether s is a recognised stance.
func (s Stance) IsValid() bool {
	switch s {
	case StanceFor, StanceAgainst, StanceNone:
		return true
	}
	return false
}

// Agent is one of the two conversation participants. Agents are constructed
// once per session from configuration and are immutable for the session's
// duration.
type Agent struct {
	// Name is the agent's display name, unique within a session.
	Name string

	// Personality is a free-text persona description injected into the LLM
	// system prompt.
	Personality string

	// Stance is the agent's debate position. StanceNone in casual mode.
	Stance Stance

	// Voice is the TTS voice configuration used for this agent's utterances.
	Voice VoiceProfile
}

// VoiceProfile describes a TTS voice configuration for an agent.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., "en-US-GuyNeural").
	ID string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Rate adjusts the speaking rate as a percentage offset from the voice's
	// default. +15 means 15% faster, -10 means 10% slower. 0 means default.
	Rate int
}

// RevealPoint maps a rune offset in an utterance to the moment (relative to
// playback start) at which everything up to and including that rune should be
// visible on screen.
type RevealPoint struct {
	// Offset is the rune offset into the displayed text. Offsets within a
	// schedule are strictly increasing.
	Offset int

	// At is the reveal timestamp relative to playback start. Timestamps within
	// a schedule are monotonically non-decreasing.
	At time.Duration
}

// RevealSchedule is the ordered sequence of reveal points for one utterance.
// The final point's timestamp equals the utterance's audio duration, so text
// finishes typing in lockstep with audio playback.
type RevealSchedule []RevealPoint

// End returns the timestamp of the last reveal point, or zero for an empty
// schedule.
func (s RevealSchedule) End() time.Duration {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].At
}

// Turn is one produced utterance plus its metadata. Turns are created by the
// conversation engine after a generation+synthesis round and are immutable
// once appended to the transcript.
type Turn struct {
	// Index is the zero-based position of this turn in the session.
	Index int

	// Speaker is the name of the agent that produced this turn.
	Speaker string

	// Phase is the phase name this turn belongs to ("free" in casual mode).
	Phase string

	// PhaseLabel is the human-readable phase label for display.
	PhaseLabel string

	// RawText is the generation collaborator's unmodified output. Preserved
	// for debugging; never re-enters a model's context.
	RawText string

	// Text is the sanitized utterance. This is what is spoken, displayed, and
	// recorded as history.
	Text string

	// Guidance is the topic-steering prompt injected before this turn, if any.
	Guidance string

	// AudioDuration is the measured (or, when Degraded is true, estimated)
	// length of the synthesized audio.
	AudioDuration time.Duration

	// Reveal is the text reveal schedule for synchronised typing.
	Reveal RevealSchedule

	// Audio holds the synthesized audio bytes. Nil when Degraded is true.
	// The engine does not persist audio; durable storage and cleanup are the
	// presentation layer's concern.
	Audio []byte

	// AudioFormat names the container/encoding of Audio (e.g., "mp3", "wav").
	AudioFormat string

	// Degraded indicates the synthesis collaborator failed for this turn and
	// the turn proceeds text-only with an estimated reveal duration.
	Degraded bool

	// CreatedAt is when the turn was completed.
	CreatedAt time.Time
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string
}

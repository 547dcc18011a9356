// Package config provides the configuration schema, loader, and voice
// catalog for the colloquy dialogue system.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "45s" or "2m" decode
// naturally.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LogLevel controls log verbosity for the colloquy process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects the conversation structure.
type Mode string

const (
	// ModeCasual is free conversation with milestone guidance.
	ModeCasual Mode = "casual"

	// ModeDebate follows a structured phase plan.
	ModeDebate Mode = "debate"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeCasual || m == ModeDebate
}

// Config is the root configuration structure for colloquy.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Agents       []AgentConfig      `yaml:"agents"`
	Conversation ConversationConfig `yaml:"conversation"`
	Sanitizer    SanitizerConfig    `yaml:"sanitizer"`
}

// ServerConfig holds network and logging settings for serve mode.
type ServerConfig struct {
	// ListenAddr is the TCP address the web server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by both provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "edge").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "tts-1").
	Model string `yaml:"model"`

	// Fallbacks are tried in order when this provider fails repeatedly.
	// Nested fallbacks are ignored.
	Fallbacks []FallbackEntry `yaml:"fallbacks,omitempty"`
}

// FallbackEntry configures one fallback provider.
type FallbackEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AgentConfig describes one of the two conversation participants.
type AgentConfig struct {
	// Name is the agent's display name, unique within the session.
	Name string `yaml:"name"`

	// Personality is a free-text persona description injected into the LLM
	// system prompt.
	Personality string `yaml:"personality"`

	// Stance is the agent's debate position: "for", "against", or empty for
	// casual mode.
	Stance string `yaml:"stance"`

	// Voice configures the TTS voice for this agent.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice parameters for an agent.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "edge", "openai").
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier
	// (e.g., "en-US-GuyNeural", "onyx").
	VoiceID string `yaml:"voice_id"`

	// Rate adjusts speaking rate as a percentage offset in [-50, 100].
	// 0 means the voice default.
	Rate int `yaml:"rate"`
}

// PhaseConfig is one segment of a debate plan.
type PhaseConfig struct {
	// Name is the phase identifier (e.g., "opening").
	Name string `yaml:"name"`

	// Label is the display form of Name.
	Label string `yaml:"label"`

	// Turns is how many turns the phase spans.
	Turns int `yaml:"turns"`

	// Opens selects which stance speaks first in the phase: "for" (default)
	// or "against".
	Opens string `yaml:"opens"`

	// Prompt is the guidance injected on the phase's first turn. A "{topic}"
	// placeholder is substituted with the session topic.
	Prompt string `yaml:"prompt"`
}

// ConversationConfig holds the session shape and generation tuning.
type ConversationConfig struct {
	// Mode selects casual or debate structure.
	Mode Mode `yaml:"mode"`

	// Topic seeds the conversation (or names the debate motion).
	Topic string `yaml:"topic"`

	// MaxTurns is the casual-mode turn budget. In debate mode it must equal
	// the phase plan total (or be zero to derive it).
	MaxTurns int `yaml:"max_turns"`

	// MilestoneInterval is the casual-mode guidance interval. Zero disables
	// guidance injection.
	MilestoneInterval int `yaml:"milestone_interval"`

	// Angles overrides the built-in rotation of guidance templates.
	Angles []string `yaml:"angles"`

	// Phases is the debate phase plan. Ignored in casual mode; an empty list
	// in debate mode selects the built-in plan.
	Phases []PhaseConfig `yaml:"phases"`

	// HistoryTurns bounds how many trailing turns re-enter the prompt.
	HistoryTurns int `yaml:"history_turns"`

	// HistoryTokens optionally bounds prompt history by token count.
	HistoryTokens int `yaml:"history_tokens"`

	// Temperature and MaxTokens are passed to the generation provider.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// GenerationTimeout bounds one generation attempt (e.g. "60s").
	GenerationTimeout Duration `yaml:"generation_timeout"`

	// SynthesisTimeout bounds one synthesis call (e.g. "30s").
	SynthesisTimeout Duration `yaml:"synthesis_timeout"`
}

// SanitizerConfig tunes the history sanitizer.
type SanitizerConfig struct {
	// Fillers overrides the built-in filler phrase list. Nil keeps the
	// default; an empty non-nil list disables filler removal.
	Fillers []string `yaml:"fillers"`

	// TagQuestions overrides the built-in trailing tag question list.
	TagQuestions []string `yaml:"tag_questions"`

	// TrimIncomplete trims a trailing incomplete sentence left by a token
	// budget cut.
	TrimIncomplete bool `yaml:"trim_incomplete"`
}

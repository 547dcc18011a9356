package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per collaborator kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"edge", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	for i, fb := range cfg.Providers.LLM.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm.fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range cfg.Providers.TTS.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts.fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}

	// Agents: exactly two, distinct names, catalog-checked voices.
	if len(cfg.Agents) != 2 {
		errs = append(errs, fmt.Errorf("agents must list exactly 2 participants, got %d", len(cfg.Agents)))
	}
	namesSeen := make(map[string]int, len(cfg.Agents))
	for i, agent := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if agent.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[agent.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of agents[%d]", prefix, agent.Name, prev))
			}
			namesSeen[agent.Name] = i
		}
		switch agent.Stance {
		case "", "for", "against":
		default:
			errs = append(errs, fmt.Errorf("%s.stance %q is invalid; valid values: for, against, or empty", prefix, agent.Stance))
		}
		if agent.Voice.VoiceID == "" {
			errs = append(errs, fmt.Errorf("%s.voice.voice_id is required", prefix))
		} else if provider := voiceProvider(cfg, agent); !KnownVoice(provider, agent.Voice.VoiceID) {
			if hint := SuggestVoice(provider, agent.Voice.VoiceID); hint != "" {
				errs = append(errs, fmt.Errorf("%s.voice.voice_id %q is not a known %s voice; did you mean %q?", prefix, agent.Voice.VoiceID, provider, hint))
			} else {
				errs = append(errs, fmt.Errorf("%s.voice.voice_id %q is not a known %s voice", prefix, agent.Voice.VoiceID, provider))
			}
		}
		if agent.Voice.Rate < -50 || agent.Voice.Rate > 100 {
			errs = append(errs, fmt.Errorf("%s.voice.rate %d is out of range [-50, 100]", prefix, agent.Voice.Rate))
		}

		// Voice provider ↔ TTS provider cross-validation.
		if agent.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && agent.Voice.Provider != cfg.Providers.TTS.Name {
			slog.Warn("agent voice provider does not match configured TTS provider",
				"agent", agent.Name,
				"voice_provider", agent.Voice.Provider,
				"tts_provider", cfg.Providers.TTS.Name,
			)
		}
	}

	// Conversation shape.
	conv := cfg.Conversation
	if conv.Mode != "" && !conv.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("conversation.mode %q is invalid; valid values: casual, debate", conv.Mode))
	}
	if conv.Topic == "" {
		errs = append(errs, errors.New("conversation.topic is required"))
	}
	if conv.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_turns %d must not be negative", conv.MaxTurns))
	}
	if conv.MilestoneInterval < 0 {
		errs = append(errs, fmt.Errorf("conversation.milestone_interval %d must not be negative", conv.MilestoneInterval))
	}

	switch conv.Mode {
	case ModeCasual, "":
		if conv.MaxTurns == 0 {
			errs = append(errs, errors.New("conversation.max_turns is required in casual mode"))
		}
	case ModeDebate:
		errs = append(errs, validateDebate(cfg)...)
	}

	return errors.Join(errs...)
}

// validateDebate checks the debate-specific invariants: stance coverage and
// phase plan consistency.
func validateDebate(cfg *Config) []error {
	var errs []error

	stances := map[string]string{}
	for _, agent := range cfg.Agents {
		if agent.Stance != "for" && agent.Stance != "against" {
			errs = append(errs, fmt.Errorf("agent %q needs stance for or against in debate mode", agent.Name))
			continue
		}
		if other, ok := stances[agent.Stance]; ok {
			errs = append(errs, fmt.Errorf("agents %q and %q share stance %q", other, agent.Name, agent.Stance))
		}
		stances[agent.Stance] = agent.Name
	}

	total := 0
	phaseNames := make(map[string]int, len(cfg.Conversation.Phases))
	for i, phase := range cfg.Conversation.Phases {
		prefix := fmt.Sprintf("conversation.phases[%d]", i)
		if phase.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := phaseNames[phase.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of conversation.phases[%d]", prefix, phase.Name, prev))
		} else {
			phaseNames[phase.Name] = i
		}
		if phase.Turns <= 0 {
			errs = append(errs, fmt.Errorf("%s.turns must be positive, got %d", prefix, phase.Turns))
		}
		switch phase.Opens {
		case "", "for", "against":
		default:
			errs = append(errs, fmt.Errorf("%s.opens %q is invalid; valid values: for, against, or empty", prefix, phase.Opens))
		}
		total += phase.Turns
	}
	if len(cfg.Conversation.Phases) > 0 && cfg.Conversation.MaxTurns != 0 && cfg.Conversation.MaxTurns != total {
		errs = append(errs, fmt.Errorf("conversation.max_turns %d disagrees with the phase plan total %d", cfg.Conversation.MaxTurns, total))
	}

	return errs
}

// voiceProvider resolves the effective TTS provider for an agent: the
// per-voice override, or the globally configured provider.
func voiceProvider(cfg *Config, agent AgentConfig) string {
	if agent.Voice.Provider != "" {
		return agent.Voice.Provider
	}
	return cfg.Providers.TTS.Name
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

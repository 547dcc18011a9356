package config

import (
	"strings"
	"testing"
	"time"
)

const validCasualYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: edge
agents:
  - name: Ava
    personality: a curious optimist
    voice:
      voice_id: en-US-JennyNeural
      rate: 15
  - name: Ben
    personality: a dry skeptic
    voice:
      voice_id: en-US-GuyNeural
      rate: 15
conversation:
  mode: casual
  topic: urban beekeeping
  max_turns: 8
  milestone_interval: 2
  generation_timeout: 45s
  synthesis_timeout: 20s
`

const validDebateYAML = `
providers:
  llm:
    name: ollama
    model: llama3.2
  tts:
    name: edge
agents:
  - name: Pro
    personality: measured advocate
    stance: for
    voice:
      voice_id: en-US-GuyNeural
  - name: Con
    personality: sharp critic
    stance: against
    voice:
      voice_id: en-US-JennyNeural
conversation:
  mode: debate
  topic: remote work should be the default
  max_turns: 8
  phases:
    - name: opening
      label: Opening statements
      turns: 2
    - name: argument
      label: Arguments
      turns: 4
    - name: closing
      label: Closing statements
      turns: 2
      opens: against
`

func TestLoadValidCasualConfig(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(validCasualYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm model = %q", cfg.Providers.LLM.Model)
	}
	if len(cfg.Agents) != 2 || cfg.Agents[0].Name != "Ava" {
		t.Fatalf("agents = %+v", cfg.Agents)
	}
	if cfg.Agents[0].Voice.Rate != 15 {
		t.Errorf("rate = %d, want 15", cfg.Agents[0].Voice.Rate)
	}
	if cfg.Conversation.GenerationTimeout.Std() != 45*time.Second {
		t.Errorf("generation_timeout = %v, want 45s", cfg.Conversation.GenerationTimeout.Std())
	}
	if cfg.Conversation.SynthesisTimeout.Std() != 20*time.Second {
		t.Errorf("synthesis_timeout = %v, want 20s", cfg.Conversation.SynthesisTimeout.Std())
	}
}

func TestLoadValidDebateConfig(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(validDebateYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if len(cfg.Conversation.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(cfg.Conversation.Phases))
	}
	if cfg.Conversation.Phases[2].Opens != "against" {
		t.Errorf("closing opens = %q, want against", cfg.Conversation.Phases[2].Opens)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := strings.Replace(validCasualYAML, "milestone_interval: 2", "milestone_intervall: 2", 1)
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected a decode error for the misspelled field")
	}
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(string) string
		wantSub string
	}{
		{
			"missing topic",
			func(y string) string { return strings.Replace(y, "topic: urban beekeeping", "topic: \"\"", 1) },
			"conversation.topic is required",
		},
		{
			"duplicate agent names",
			func(y string) string { return strings.Replace(y, "name: Ben", "name: Ava", 1) },
			"duplicate",
		},
		{
			"invalid log level",
			func(y string) string { return strings.Replace(y, "log_level: info", "log_level: loud", 1) },
			"server.log_level",
		},
		{
			"invalid mode",
			func(y string) string { return strings.Replace(y, "mode: casual", "mode: panel", 1) },
			"conversation.mode",
		},
		{
			"rate out of range",
			func(y string) string { return strings.Replace(y, "rate: 15", "rate: 400", 1) },
			"out of range",
		},
		{
			"invalid stance",
			func(y string) string {
				return strings.Replace(y, "personality: a curious optimist", "personality: a curious optimist\n    stance: undecided", 1)
			},
			"stance",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromReader(strings.NewReader(tt.mutate(validCasualYAML)))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestVoiceTypoGetsSuggestion(t *testing.T) {
	t.Parallel()
	yaml := strings.Replace(validCasualYAML, "voice_id: en-US-GuyNeural", "voice_id: en-US-GuyNeurall", 1)
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected a validation error for the misspelled voice")
	}
	if !strings.Contains(err.Error(), `did you mean "en-US-GuyNeural"`) {
		t.Errorf("error %q lacks the nearest-match suggestion", err)
	}
}

func TestDebatePlanTotalMismatch(t *testing.T) {
	t.Parallel()
	yaml := strings.Replace(validDebateYAML, "max_turns: 8", "max_turns: 9", 1)
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "phase plan total") {
		t.Fatalf("err = %v, want phase plan total mismatch", err)
	}
}

func TestDebateStanceCoverage(t *testing.T) {
	t.Parallel()
	yaml := strings.Replace(validDebateYAML, "stance: against", "stance: for", 1)
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "share stance") {
		t.Fatalf("err = %v, want shared-stance error", err)
	}
}

func TestKnownVoice(t *testing.T) {
	t.Parallel()
	if !KnownVoice("edge", "en-US-JennyNeural") {
		t.Error("catalog voice reported unknown")
	}
	if KnownVoice("edge", "en-US-NobodyNeural") {
		t.Error("made-up voice reported known")
	}
	// Providers without a catalog accept anything.
	if !KnownVoice("customtts", "whatever") {
		t.Error("uncatalogued provider rejected a voice")
	}
}

func TestSuggestVoice(t *testing.T) {
	t.Parallel()
	if got := SuggestVoice("openai", "onix"); got != "onyx" {
		t.Errorf("SuggestVoice(onix) = %q, want onyx", got)
	}
	if got := SuggestVoice("edge", "zzzzzz"); got != "" {
		t.Errorf("SuggestVoice(zzzzzz) = %q, want no suggestion", got)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()
	cfg, err := Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Conversation.Topic == "" {
		t.Error("example config has no topic")
	}
	if len(cfg.Agents) != 2 {
		t.Errorf("example config has %d agents", len(cfg.Agents))
	}
}

// Package app wires configuration, providers, and the conversation engine
// into runnable sessions, and manages the lifecycle of concurrently running
// sessions.
package app

import (
	"fmt"

	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/internal/conversation"
	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/internal/sanitize"
	"github.com/MrWong99/colloquy/internal/schedule"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
	"github.com/MrWong99/colloquy/pkg/types"
)

// Providers bundles the two collaborator implementations a session needs.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
}

// buildAgents maps the configured agents into session agents.
func buildAgents(cfg *config.Config) ([2]types.Agent, error) {
	if len(cfg.Agents) != 2 {
		return [2]types.Agent{}, fmt.Errorf("app: need exactly 2 agents, got %d", len(cfg.Agents))
	}
	var agents [2]types.Agent
	for i, ac := range cfg.Agents {
		provider := ac.Voice.Provider
		if provider == "" {
			provider = cfg.Providers.TTS.Name
		}
		agents[i] = types.Agent{
			Name:        ac.Name,
			Personality: ac.Personality,
			Stance:      types.Stance(ac.Stance),
			Voice: types.VoiceProfile{
				ID:       ac.Voice.VoiceID,
				Provider: provider,
				Rate:     ac.Voice.Rate,
			},
		}
	}
	return agents, nil
}

// buildPlan maps the configured debate phases into a schedule plan, falling
// back to the built-in plan when none are configured.
func buildPlan(phases []config.PhaseConfig) schedule.Plan {
	if len(phases) == 0 {
		return schedule.DefaultDebatePlan()
	}
	plan := make(schedule.Plan, 0, len(phases))
	for _, p := range phases {
		plan = append(plan, schedule.Phase{
			Name:   p.Name,
			Label:  p.Label,
			Turns:  p.Turns,
			Opens:  types.Stance(p.Opens),
			Prompt: p.Prompt,
		})
	}
	return plan
}

// buildScheduler constructs the turn scheduler for one session.
func buildScheduler(cfg *config.Config, agents [2]types.Agent) (*schedule.Scheduler, error) {
	conv := cfg.Conversation
	mode := schedule.ModeCasual
	var plan schedule.Plan
	if conv.Mode == config.ModeDebate {
		mode = schedule.ModeDebate
		plan = buildPlan(conv.Phases)
	}
	return schedule.New(schedule.Config{
		Mode:              mode,
		Agents:            agents,
		Topic:             conv.Topic,
		MaxTurns:          conv.MaxTurns,
		MilestoneInterval: conv.MilestoneInterval,
		Angles:            conv.Angles,
		Plan:              plan,
	})
}

// buildSanitizer constructs the history sanitizer from config.
func buildSanitizer(cfg *config.Config) *sanitize.Sanitizer {
	sc := cfg.Sanitizer
	if sc.Fillers == nil && sc.TagQuestions == nil && !sc.TrimIncomplete {
		return sanitize.Default()
	}
	return sanitize.New(sanitize.Config{
		Fillers:        sc.Fillers,
		TagQuestions:   sc.TagQuestions,
		TrimIncomplete: sc.TrimIncomplete,
	})
}

// buildEngine assembles a conversation engine for one session.
func buildEngine(cfg *config.Config, providers Providers, metrics *observe.Metrics) (*conversation.Engine, error) {
	agents, err := buildAgents(cfg)
	if err != nil {
		return nil, err
	}
	sched, err := buildScheduler(cfg, agents)
	if err != nil {
		return nil, fmt.Errorf("app: build scheduler: %w", err)
	}

	conv := cfg.Conversation
	eng, err := conversation.New(conversation.Config{
		Agents:            agents,
		Topic:             conv.Topic,
		LLM:               providers.LLM,
		TTS:               providers.TTS,
		Scheduler:         sched,
		Sanitizer:         buildSanitizer(cfg),
		Metrics:           metrics,
		HistoryTurns:      conv.HistoryTurns,
		HistoryTokens:     conv.HistoryTokens,
		Temperature:       conv.Temperature,
		MaxTokens:         conv.MaxTokens,
		GenerationTimeout: conv.GenerationTimeout.Std(),
		SynthesisTimeout:  conv.SynthesisTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	return eng, nil
}

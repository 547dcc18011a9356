package conversation

import (
	"fmt"
	"strings"

	"github.com/MrWong99/colloquy/internal/schedule"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/types"
)

// registerInstruction keeps small models in a spoken register. Appended to
// every system prompt.
const registerInstruction = "Reply in 2 to 3 short conversational sentences, the way people talk out loud. " +
	"No lists, no headings, no stage directions."

// systemPrompt assembles the per-speaker system prompt: persona, debate
// stance when present, and the spoken-register instruction.
func (e *Engine) systemPrompt(agent types.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s", agent.Name, agent.Personality)

	switch agent.Stance {
	case types.StanceFor:
		fmt.Fprintf(&b, "\nYou argue FOR the motion: %s. Stay on your side throughout.", e.topic)
	case types.StanceAgainst:
		fmt.Fprintf(&b, "\nYou argue AGAINST the motion: %s. Stay on your side throughout.", e.topic)
	}

	b.WriteString("\n")
	b.WriteString(registerInstruction)
	return b.String()
}

// buildRequest assembles the completion request for one turn: sanitized
// trailing history bounded by the configured window, plus the turn's
// steering message (guidance, topic seed, or re-anchor).
func (e *Engine) buildRequest(agent types.Agent, step schedule.Step, reanchor bool) llm.CompletionRequest {
	history := e.historyWindow(agent)

	var steer string
	switch {
	case reanchor:
		steer = fmt.Sprintf("Let's get back to the main topic: %s. Take a fresh angle on it.", e.topic)
	case step.Guidance != "":
		steer = step.Guidance
	case len(history) == 0:
		steer = fmt.Sprintf("The topic is: %s. Open the conversation.", e.topic)
	case history[len(history)-1].Role == "assistant":
		// Back-to-back turns by the same speaker (debate phase handoff).
		steer = "Continue with your next point."
	}
	if steer != "" {
		history = append(history, types.Message{Role: "user", Content: steer})
	}

	return llm.CompletionRequest{
		Messages:     history,
		SystemPrompt: e.systemPrompt(agent),
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	}
}

// historyWindow maps the trailing transcript window into chat messages from
// the given agent's point of view: its own past turns become assistant
// messages, the other agent's become user messages. Only sanitized text ever
// re-enters a model's context.
func (e *Engine) historyWindow(agent types.Agent) []types.Message {
	turns := e.transcript
	if e.historyTurns > 0 && len(turns) > e.historyTurns {
		turns = turns[len(turns)-e.historyTurns:]
	}

	msgs := make([]types.Message, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Speaker == agent.Name {
			role = "assistant"
		}
		msgs = append(msgs, types.Message{Role: role, Content: t.Text, Name: t.Speaker})
	}

	// Trim oldest-first until the window fits the token budget.
	if e.historyTokens > 0 {
		for len(msgs) > 1 {
			n, err := e.llm.CountTokens(msgs)
			if err != nil || n <= e.historyTokens {
				break
			}
			msgs = msgs[1:]
		}
	}
	return msgs
}

package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrWong99/colloquy/pkg/types"
	"github.com/coder/websocket"
)

// turnEvent is a websocket frame carrying one finished turn. Audio is
// base64-encoded by the JSON marshaller; clients decode it and schedule
// playback against the reveal points.
type turnEvent struct {
	Type        string        `json:"type"`
	Index       int           `json:"index"`
	Speaker     string        `json:"speaker"`
	Phase       string        `json:"phase"`
	PhaseLabel  string        `json:"phase_label,omitempty"`
	Text        string        `json:"text"`
	Guidance    string        `json:"guidance,omitempty"`
	DurationMS  int64         `json:"duration_ms"`
	Reveal      []revealPoint `json:"reveal"`
	Audio       []byte        `json:"audio,omitempty"`
	AudioFormat string        `json:"audio_format,omitempty"`
	Degraded    bool          `json:"degraded,omitempty"`
}

// revealPoint mirrors types.RevealPoint for the wire; Offset counts runes
// into Text, not bytes.
type revealPoint struct {
	Offset int   `json:"offset"`
	AtMS   int64 `json:"at_ms"`
}

// endEvent is the terminal frame sent when the session stops producing
// turns, with the session's error when it did not finish cleanly.
type endEvent struct {
	Type  string `json:"type"`
	Turns int    `json:"turns"`
	Error string `json:"error,omitempty"`
}

// handleStream upgrades to a websocket and forwards the session's turns as
// they complete. The turn stream has single-consumer semantics: one stream
// connection per session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no such session"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "session_id", sess.Info().ID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sent := 0
	for {
		select {
		case <-ctx.Done():
			return
		case turn, open := <-sess.Turns():
			if !open {
				end := endEvent{Type: "end", Turns: sent}
				if err := sess.Err(); err != nil {
					end.Error = err.Error()
				}
				_ = writeFrame(ctx, conn, end)
				_ = conn.Close(websocket.StatusNormalClosure, "session complete")
				return
			}
			if err := writeFrame(ctx, conn, turnToEvent(turn)); err != nil {
				s.log.Debug("stream client gone", "session_id", sess.Info().ID, "error", err)
				return
			}
			sent++
		}
	}
}

func turnToEvent(turn types.Turn) turnEvent {
	reveal := make([]revealPoint, 0, len(turn.Reveal))
	for _, pt := range turn.Reveal {
		reveal = append(reveal, revealPoint{Offset: pt.Offset, AtMS: pt.At.Milliseconds()})
	}
	return turnEvent{
		Type:        "turn",
		Index:       turn.Index,
		Speaker:     turn.Speaker,
		Phase:       turn.Phase,
		PhaseLabel:  turn.PhaseLabel,
		Text:        turn.Text,
		Guidance:    turn.Guidance,
		DurationMS:  turn.AudioDuration.Milliseconds(),
		Reveal:      reveal,
		Audio:       turn.Audio,
		AudioFormat: turn.AudioFormat,
		Degraded:    turn.Degraded,
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

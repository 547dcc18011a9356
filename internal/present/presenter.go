// Package present renders finished turns in a terminal: audio playback and a
// typewriter-style text reveal run concurrently, paced by the turn's reveal
// schedule so the text finishes typing when the audio finishes speaking.
package present

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/colloquy/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Presenter renders turns to a writer. It owns a temp directory for audio
// files; call Close when done to remove it.
type Presenter struct {
	w      io.Writer
	player Player
	dir    string
	log    *slog.Logger
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithPlayer sets the audio player. Without one, turns are rendered
// text-only at the pace of their reveal schedules.
func WithPlayer(p Player) Option {
	return func(pr *Presenter) { pr.player = p }
}

// New creates a Presenter writing to w.
func New(w io.Writer, opts ...Option) (*Presenter, error) {
	dir, err := os.MkdirTemp("", "colloquy-audio-*")
	if err != nil {
		return nil, fmt.Errorf("present: create temp dir: %w", err)
	}
	p := &Presenter{
		w:   w,
		dir: dir,
		log: slog.Default().With("component", "present"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close removes the presenter's temp directory and any audio files left in
// it.
func (p *Presenter) Close() error {
	return os.RemoveAll(p.dir)
}

// Present renders one turn: the speaker header, then the utterance revealed
// rune by rune alongside audio playback. The audio file is written to the
// temp directory for the duration of playback and removed afterwards. When
// playback ends before the schedule does, the remaining text is revealed
// immediately.
func (p *Presenter) Present(ctx context.Context, turn types.Turn) error {
	p.printHeader(turn)

	if p.player == nil || turn.Degraded || len(turn.Audio) == 0 {
		if turn.Degraded {
			fmt.Fprint(p.w, "  (voice unavailable)\n")
		}
		err := p.reveal(ctx, turn, nil)
		fmt.Fprintln(p.w)
		return err
	}

	path, err := p.writeAudio(turn)
	if err != nil {
		p.log.Warn("could not stage audio file, continuing text-only",
			"turn", turn.Index, "error", err)
		err := p.reveal(ctx, turn, nil)
		fmt.Fprintln(p.w)
		return err
	}
	defer os.Remove(path)

	playbackDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(playbackDone)
		if err := p.player.Play(gctx, path); err != nil && gctx.Err() == nil {
			p.log.Warn("audio playback failed", "turn", turn.Index, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return p.reveal(gctx, turn, playbackDone)
	})
	err = g.Wait()
	fmt.Fprintln(p.w)
	return err
}

func (p *Presenter) printHeader(turn types.Turn) {
	label := turn.PhaseLabel
	if label == "" {
		label = turn.Phase
	}
	fmt.Fprintf(p.w, "\n[%s] %s:\n", label, turn.Speaker)
}

// writeAudio stages the turn's audio bytes as a file under the presenter's
// temp directory.
func (p *Presenter) writeAudio(turn types.Turn) (string, error) {
	format := turn.AudioFormat
	if format == "" {
		format = "mp3"
	}
	path := filepath.Join(p.dir, fmt.Sprintf("turn-%03d.%s", turn.Index, format))
	if err := os.WriteFile(path, turn.Audio, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// reveal types out turn.Text at the pace of its reveal schedule. A closed
// playbackDone channel short-circuits the pacing: the rest of the text is
// written at once. A nil playbackDone never fires.
func (p *Presenter) reveal(ctx context.Context, turn types.Turn, playbackDone <-chan struct{}) error {
	text := []rune(turn.Text)
	schedule := turn.Reveal
	if len(schedule) == 0 {
		schedule = types.RevealSchedule{{Offset: len(text), At: 0}}
	}

	start := time.Now()
	shown := 0
	flush := func(upTo int) {
		if upTo > len(text) {
			upTo = len(text)
		}
		if upTo <= shown {
			return
		}
		fmt.Fprint(p.w, string(text[shown:upTo]))
		shown = upTo
	}

	for _, pt := range schedule {
		if wait := pt.At - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-playbackDone:
				timer.Stop()
				if err := ctx.Err(); err != nil {
					return err
				}
				flush(len(text))
				return nil
			case <-timer.C:
			}
		}
		flush(pt.Offset)
	}
	flush(len(text))
	return nil
}

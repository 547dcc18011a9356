package present

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
)

// Player plays one synthesized audio file to completion. Play blocks until
// playback finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, path string) error
}

// playerCandidates lists known command-line audio players in preference
// order, each with the flags that make it exit quietly after playback.
var playerCandidates = []struct {
	name string
	args []string
}{
	{"mpv", []string{"--no-video", "--really-quiet"}},
	{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	{"afplay", nil},
	{"aplay", []string{"-q"}},
}

// ExecPlayer plays audio by shelling out to an installed media player.
type ExecPlayer struct {
	cmd  string
	args []string
}

// Compile-time interface assertion.
var _ Player = (*ExecPlayer)(nil)

// DetectPlayer looks for an installed media player and returns an ExecPlayer
// wrapping the first one found.
func DetectPlayer() (*ExecPlayer, error) {
	for _, c := range playerCandidates {
		path, err := exec.LookPath(c.name)
		if err != nil {
			continue
		}
		return &ExecPlayer{cmd: path, args: c.args}, nil
	}
	return nil, fmt.Errorf("present: no audio player found (tried mpv, ffplay, afplay, aplay)")
}

// Play implements Player.
func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	args := append(slices.Clone(p.args), path)
	cmd := exec.CommandContext(ctx, p.cmd, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("present: %s: %w", p.cmd, err)
	}
	return nil
}

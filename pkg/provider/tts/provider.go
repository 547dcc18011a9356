// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Microsoft Edge's
// read-aloud endpoint or the OpenAI speech API) and presents a uniform
// contract: text in, audio bytes plus a measured duration out. The duration
// is what the sync planner spreads the text reveal over, so providers should
// report it as accurately as their protocol allows and fall back to a
// byte-length or speech-rate estimate otherwise.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., several sessions speaking at once).
package tts

import (
	"context"
	"time"

	"github.com/MrWong99/colloquy/pkg/types"
)

// Result is the outcome of one synthesis call.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// Format names the container/encoding of Audio (e.g., "mp3", "wav").
	Format string

	// Duration is the playback length of Audio. Never negative; zero only
	// for empty input text.
	Duration time.Duration
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into speech using the given voice profile and
	// returns the audio together with its playback duration.
	//
	// Implementations must return an error if the requested voice is not
	// available, and must respect ctx cancellation and deadlines — the caller
	// time-boxes every call. The caller does not persist audio; ownership of
	// the returned bytes transfers to the caller.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Result, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio results to consumers and to verify
// that the correct text and VoiceProfile are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &tts.Result{Audio: []byte("audio"), Format: "mp3", Duration: 2 * time.Second},
//	}
//	res, _ := p.Synthesize(ctx, "hello", voice)
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/colloquy/pkg/provider/tts"
	"github.com/MrWong99/colloquy/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Synthesize. When nil, a result with empty audio
	// and a duration proportional to the text length (100ms per word) is
	// fabricated so schedule-dependent callers behave sensibly.
	Result *tts.Result

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// SynthesizeErrs maps a zero-based call index to an error injected for
	// that specific call, overriding SynthesizeErr.
	SynthesizeErrs map[int]error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := len(p.SynthesizeCalls)
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})

	if err, ok := p.SynthesizeErrs[call]; ok {
		return nil, err
	}
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.Result != nil {
		cp := *p.Result
		return &cp, nil
	}
	return &tts.Result{
		Audio:    []byte("mock-audio"),
		Format:   "mp3",
		Duration: fabricatedDuration(text),
	}, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	out := make([]types.VoiceProfile, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// fabricatedDuration is 100ms per word, so longer text yields longer audio.
func fabricatedDuration(text string) time.Duration {
	return time.Duration(len(strings.Fields(text))) * 100 * time.Millisecond
}

// Calls returns a snapshot of recorded Synthesize invocations.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Package openai provides a TTS provider backed by the OpenAI speech API.
// It implements the tts.Provider interface.
//
// The speech endpoint does not report playback duration, so this provider
// requests WAV output and measures the duration from the WAV header — the
// byte rate and data chunk length give the exact playback time.
package openai

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/colloquy/pkg/provider/tts"
	"github.com/MrWong99/colloquy/pkg/types"
)

const defaultModel = openaigo.SpeechModelTTS1

// knownVoices is the fixed voice catalogue of the OpenAI speech API.
var knownVoices = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

// Option is a functional option for configuring the OpenAI Provider.
type Option func(*Provider)

// WithModel sets the speech model ID (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = openaigo.SpeechModel(model)
	}
}

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client openaigo.Client
	model  openaigo.SpeechModel
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a new OpenAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{
		client: openaigo.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize converts text to WAV speech using the given voice.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Result, error) {
	if voice.ID == "" {
		return nil, errors.New("openai: voice.ID must not be empty")
	}
	if text == "" {
		return &tts.Result{Format: "wav"}, nil
	}

	params := openaigo.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          openaigo.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: openaigo.AudioSpeechNewParamsResponseFormatWAV,
	}
	if voice.Rate != 0 {
		params.Speed = openaigo.Float(1 + float64(voice.Rate)/100)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read audio: %w", err)
	}

	duration, err := wavDuration(audio)
	if err != nil {
		return nil, fmt.Errorf("openai: measure duration: %w", err)
	}

	return &tts.Result{Audio: audio, Format: "wav", Duration: duration}, nil
}

// ListVoices returns the fixed OpenAI speech voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	profiles := make([]types.VoiceProfile, 0, len(knownVoices))
	for _, v := range knownVoices {
		profiles = append(profiles, types.VoiceProfile{ID: v, Provider: "openai"})
	}
	return profiles, nil
}

// wavDuration computes the playback duration of a RIFF/WAVE payload from its
// fmt byte rate and data chunk length.
func wavDuration(wav []byte) (time.Duration, error) {
	if len(wav) < 12 || string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE payload")
	}

	var byteRate uint32
	var dataLen uint32
	foundFmt, foundData := false, false

	// Walk the chunk list. Chunks are 8-byte headers (ID + length) plus payload.
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := binary.LittleEndian.Uint32(wav[off+4 : off+8])
		body := off + 8

		switch id {
		case "fmt ":
			if body+16 > len(wav) {
				return 0, errors.New("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(wav[body+8 : body+12])
			foundFmt = true
		case "data":
			dataLen = size
			// The speech endpoint may stream WAV with a zero-length data
			// header; fall back to the remaining byte count.
			if dataLen == 0 || int(dataLen) > len(wav)-body {
				dataLen = uint32(len(wav) - body)
			}
			foundData = true
		}

		if foundFmt && foundData {
			break
		}
		off = body + int(size)
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if !foundFmt || !foundData {
		return 0, errors.New("missing fmt or data chunk")
	}
	if byteRate == 0 {
		return 0, errors.New("zero byte rate in fmt chunk")
	}

	seconds := float64(dataLen) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

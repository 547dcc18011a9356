// Package edge provides a TTS provider backed by Microsoft Edge's read-aloud
// WebSocket service. It implements the tts.Provider interface.
//
// The service speaks a framed protocol over a single WebSocket: the client
// sends a speech.config message followed by an SSML message, then receives
// interleaved text frames (turn.start, audio.metadata, turn.end) and binary
// frames carrying MP3 audio. audio.metadata frames include word-boundary
// offsets in 100-nanosecond ticks, which this provider uses to report an
// accurate playback duration alongside the audio bytes.
package edge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/colloquy/pkg/provider/tts"
	"github.com/MrWong99/colloquy/pkg/types"
)

const (
	wsEndpointFmt  = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1?TrustedClientToken=%s&ConnectionId=%s"
	voicesEndpoint = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/voices/list?trustedclienttoken=%s"

	// trustedClientToken is the public token the Edge browser itself uses.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	defaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"

	// tick is the unit of word-boundary offsets reported by the service.
	tick = 100 * time.Nanosecond

	// fallbackWordsPerMinute estimates duration when the service reports no
	// word boundaries (e.g., punctuation-only input).
	fallbackWordsPerMinute = 150
)

// Option is a functional option for configuring the edge Provider.
type Option func(*Provider)

// WithOutputFormat overrides the audio output format requested from the
// service. The default is "audio-24khz-48kbitrate-mono-mp3".
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// Provider implements tts.Provider backed by the Edge read-aloud service.
// The service requires no API key.
type Provider struct {
	outputFormat string
	httpClient   *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a new edge Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		outputFormat: defaultOutputFormat,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize converts text to MP3 speech using the given voice, reporting the
// playback duration measured from the service's word-boundary metadata.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Result, error) {
	if voice.ID == "" {
		return nil, errors.New("edge: voice.ID must not be empty")
	}
	if text == "" {
		return &tts.Result{Format: "mp3"}, nil
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, trustedClientToken, connectionID())
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("edge: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	if err := conn.Write(ctx, websocket.MessageText, p.configMessage()); err != nil {
		return nil, fmt.Errorf("edge: send speech.config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, ssmlMessage(text, voice)); err != nil {
		return nil, fmt.Errorf("edge: send ssml: %w", err)
	}

	var (
		audio       []byte
		boundaryEnd time.Duration
	)

	for {
		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("edge: read: %w", err)
		}

		switch msgType {
		case websocket.MessageBinary:
			payload, ok := parseBinaryFrame(msg)
			if ok {
				audio = append(audio, payload...)
			}
		case websocket.MessageText:
			path := framePath(string(msg))
			switch path {
			case "audio.metadata":
				if end, ok := parseMetadataEnd(string(msg)); ok && end > boundaryEnd {
					boundaryEnd = end
				}
			case "turn.end":
				duration := boundaryEnd
				if duration == 0 {
					duration = estimateFromWords(text)
				}
				return &tts.Result{Audio: audio, Format: "mp3", Duration: duration}, nil
			}
		}
	}
}

// ListVoices returns the Edge read-aloud voice catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	url := fmt.Sprintf(voicesEndpoint, trustedClientToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("edge: list voices: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edge: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edge: list voices: unexpected status %d", resp.StatusCode)
	}

	var entries []voiceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("edge: list voices decode: %w", err)
	}

	profiles := make([]types.VoiceProfile, 0, len(entries))
	for _, v := range entries {
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.ShortName,
			Provider: "edge",
		})
	}
	return profiles, nil
}

// voiceEntry is a single voice from the read-aloud voice list.
type voiceEntry struct {
	Name      string `json:"Name"`
	ShortName string `json:"ShortName"`
	Gender    string `json:"Gender"`
	Locale    string `json:"Locale"`
}

// ---- protocol framing ----

// configMessage builds the speech.config frame enabling word-boundary metadata.
func (p *Provider) configMessage() []byte {
	config := fmt.Sprintf(
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"true"},"outputFormat":%q}}}}`,
		p.outputFormat,
	)
	var sb strings.Builder
	sb.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	sb.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	sb.WriteString("Path:speech.config\r\n\r\n")
	sb.WriteString(config)
	return []byte(sb.String())
}

// ssmlMessage builds the ssml frame carrying the utterance text.
func ssmlMessage(text string, voice types.VoiceProfile) []byte {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(text))

	rate := fmt.Sprintf("%+d%%", voice.Rate)
	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'><voice name='%s'><prosody pitch='+0Hz' rate='%s' volume='+0%%'>%s</prosody></voice></speak>`,
		voice.ID, rate, escaped.String(),
	)

	var sb strings.Builder
	sb.WriteString("X-RequestId:" + connectionID() + "\r\n")
	sb.WriteString("Content-Type:application/ssml+xml\r\n")
	sb.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	sb.WriteString("Path:ssml\r\n\r\n")
	sb.WriteString(ssml)
	return []byte(sb.String())
}

// parseBinaryFrame extracts the audio payload from a binary frame. The frame
// starts with a big-endian uint16 header length, followed by the header block
// and the payload. Only frames whose header contains Path:audio carry audio.
func parseBinaryFrame(msg []byte) ([]byte, bool) {
	if len(msg) < 2 {
		return nil, false
	}
	headerLen := int(binary.BigEndian.Uint16(msg[:2]))
	if len(msg) < 2+headerLen {
		return nil, false
	}
	header := string(msg[2 : 2+headerLen])
	if framePath(header) != "audio" {
		return nil, false
	}
	return msg[2+headerLen:], true
}

// framePath extracts the Path header value from a frame's header block.
func framePath(header string) string {
	for _, line := range strings.Split(header, "\r\n") {
		if v, ok := strings.CutPrefix(line, "Path:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// metadataFrame mirrors the JSON body of an audio.metadata frame. Offset and
// Duration are in 100-nanosecond ticks from the start of the audio stream.
type metadataFrame struct {
	Metadata []struct {
		Type string `json:"Type"`
		Data struct {
			Offset   int64 `json:"Offset"`
			Duration int64 `json:"Duration"`
		} `json:"Data"`
	} `json:"Metadata"`
}

// parseMetadataEnd returns the end timestamp of the last word boundary in an
// audio.metadata frame, or false if the frame contains none.
func parseMetadataEnd(msg string) (time.Duration, bool) {
	idx := strings.Index(msg, "\r\n\r\n")
	if idx < 0 {
		return 0, false
	}
	var frame metadataFrame
	if err := json.Unmarshal([]byte(msg[idx+4:]), &frame); err != nil {
		return 0, false
	}
	var end time.Duration
	found := false
	for _, m := range frame.Metadata {
		if m.Type != "WordBoundary" {
			continue
		}
		found = true
		if e := time.Duration(m.Data.Offset+m.Data.Duration) * tick; e > end {
			end = e
		}
	}
	return end, found
}

// estimateFromWords approximates duration at a fixed reading speed. Used only
// when the service reports no word boundaries.
func estimateFromWords(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / fallbackWordsPerMinute * float64(time.Minute))
}

// connectionID returns a dash-less UUID as required by the service.
func connectionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// timestamp formats the current time the way the service expects.
func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 2 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

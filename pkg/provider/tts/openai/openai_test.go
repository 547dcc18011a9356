package openai

import (
	"encoding/binary"
	"testing"
	"time"
)

// makeWAV builds a minimal RIFF/WAVE payload with the given byte rate and
// data length.
func makeWAV(byteRate uint32, dataLen int) []byte {
	wav := []byte("RIFF\x00\x00\x00\x00WAVE")

	fmtChunk := make([]byte, 8+16)
	copy(fmtChunk, "fmt ")
	binary.LittleEndian.PutUint32(fmtChunk[4:8], 16)
	binary.LittleEndian.PutUint16(fmtChunk[8:10], 1)  // PCM
	binary.LittleEndian.PutUint16(fmtChunk[10:12], 1) // mono
	binary.LittleEndian.PutUint32(fmtChunk[12:16], byteRate/2)
	binary.LittleEndian.PutUint32(fmtChunk[16:20], byteRate)
	wav = append(wav, fmtChunk...)

	dataChunk := make([]byte, 8+dataLen)
	copy(dataChunk, "data")
	binary.LittleEndian.PutUint32(dataChunk[4:8], uint32(dataLen))
	wav = append(wav, dataChunk...)

	return wav
}

func TestWavDuration(t *testing.T) {
	t.Parallel()

	// 48000 bytes/s byte rate, 96000 bytes of data: exactly 2 seconds.
	wav := makeWAV(48000, 96000)
	got, err := wavDuration(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
}

func TestWavDuration_ZeroLengthDataHeader(t *testing.T) {
	t.Parallel()

	// Streamed WAV: the data chunk header claims zero length, but audio
	// bytes follow. Duration should come from the actual byte count.
	wav := makeWAV(48000, 48000)
	binary.LittleEndian.PutUint32(wav[12+8+16+4:], 0)

	got, err := wavDuration(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != time.Second {
		t.Errorf("expected 1s, got %v", got)
	}
}

func TestWavDuration_NotWAV(t *testing.T) {
	t.Parallel()

	if _, err := wavDuration([]byte("ID3\x04mp3 payload here")); err == nil {
		t.Error("expected error for non-WAV payload")
	}
	if _, err := wavDuration(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	voices, err := p.ListVoices(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) == 0 {
		t.Fatal("expected a non-empty voice catalogue")
	}
	for _, v := range voices {
		if v.Provider != "openai" {
			t.Errorf("expected provider openai, got %q", v.Provider)
		}
	}
}

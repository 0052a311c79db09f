package audio

import (
	"bytes"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	wav := NewWavBufferFull(pcm, 16000, 1, 16)

	decoded, err := Decode(wav)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.SampleRate != 16000 || decoded.Channels != 1 || decoded.BitDepth != 16 {
		t.Fatalf("unexpected format: %+v", decoded)
	}
	if !bytes.Equal(decoded.PCM, pcm) {
		t.Fatalf("expected PCM round-trip, got %v", decoded.PCM)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a wav file")); err != ErrNotWav {
		t.Fatalf("expected ErrNotWav, got %v", err)
	}
}

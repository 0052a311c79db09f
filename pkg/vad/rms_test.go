package vad

import (
	"testing"

	"github.com/vocodex/listener/pkg/chunk"
)

func format() chunk.Format {
	return chunk.Format{SampleRate: 16000, SampleWidth: 2, SampleChannels: 1}
}

// loudChunk alternates samples of +16384 and -16384, so it has no DC
// offset for DebiasedEnergy to cancel out.
func loudChunk(n int) []byte {
	data := make([]byte, n)
	for i := 0; i+3 < n; i += 4 {
		data[i+1] = 0x40
		data[i+3] = 0xC0
	}
	return data
}

func silentChunk(n int) []byte {
	return make([]byte, n)
}

func TestRMSVADRequiresConsecutiveLoudFrames(t *testing.T) {
	v := NewRMSVAD(format(), 0.1, 3, 2)
	if v.IsSpeech(loudChunk(320)) {
		t.Fatalf("one loud frame must not confirm speech yet")
	}
	if v.IsSpeech(loudChunk(320)) {
		t.Fatalf("two loud frames must not confirm speech yet")
	}
	if !v.IsSpeech(loudChunk(320)) {
		t.Fatalf("three consecutive loud frames must confirm speech")
	}
}

func TestRMSVADHoldsThroughBriefSilence(t *testing.T) {
	v := NewRMSVAD(format(), 0.1, 1, 3)
	if !v.IsSpeech(loudChunk(320)) {
		t.Fatalf("expected speech to start")
	}
	if !v.IsSpeech(silentChunk(320)) {
		t.Fatalf("expected speech held through first silent frame")
	}
	if !v.IsSpeech(silentChunk(320)) {
		t.Fatalf("expected speech held through second silent frame")
	}
	if v.IsSpeech(silentChunk(320)) {
		t.Fatalf("expected speech to end after minSilenceFrames consecutive silent frames")
	}
}

func TestRMSVADResetClearsHysteresis(t *testing.T) {
	v := NewRMSVAD(format(), 0.1, 1, 5)
	v.IsSpeech(loudChunk(320))
	v.Reset()
	if v.IsSpeech(silentChunk(320)) {
		t.Fatalf("expected silence classification after Reset")
	}
}

func TestExtractSpeechSkipsShortResult(t *testing.T) {
	v := NewRMSVAD(format(), 0.1, 1, 1)
	_, ok := v.ExtractSpeech(silentChunk(1000))
	if ok {
		t.Fatalf("expected trimming to be skipped for all-silence input")
	}
}

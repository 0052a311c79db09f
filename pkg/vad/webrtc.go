package vad

import (
	"fmt"

	"github.com/maxhawkins/go-webrtcvad"
	"github.com/vocodex/listener/pkg/chunk"
)

// WebRTCVAD wraps Google's WebRTC voice activity detector
// (github.com/maxhawkins/go-webrtcvad), an alternate pluggable engine to
// RMSVAD for deployments that want a model-based detector instead of an
// energy threshold. It satisfies the same Detector interface so VoiceLoop
// never has to know which engine is active.
type WebRTCVAD struct {
	format    chunk.Format
	vad       *webrtcvad.VAD
	aggressiveness int

	minSilenceFrames int
	speaking         bool
	silentStreak     int
}

// NewWebRTCVAD builds a detector at the given aggressiveness (0-3, higher is
// more aggressive about classifying audio as speech) for format, which must
// be 8/16/32/48kHz mono 16-bit PCM per the underlying library's contract.
func NewWebRTCVAD(format chunk.Format, aggressiveness, minSilenceFrames int) (*WebRTCVAD, error) {
	switch format.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("vad: webrtc vad does not support sample rate %d", format.SampleRate)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, err
	}
	if minSilenceFrames < 1 {
		minSilenceFrames = 1
	}
	return &WebRTCVAD{
		format:           format,
		vad:              v,
		aggressiveness:   aggressiveness,
		minSilenceFrames: minSilenceFrames,
	}, nil
}

func (w *WebRTCVAD) Name() string { return "webrtc_vad" }

func (w *WebRTCVAD) IsSpeech(data []byte) bool {
	active, err := w.vad.Process(w.format.SampleRate, data)
	if err != nil {
		// a single chunk's VAD error is treated as silence, per the
		// failure semantics in the spec.
		active = false
	}

	if active {
		w.silentStreak = 0
		w.speaking = true
		return true
	}

	if w.speaking {
		w.silentStreak++
		if w.silentStreak >= w.minSilenceFrames {
			w.speaking = false
		}
	}
	return w.speaking
}

func (w *WebRTCVAD) Reset() {
	w.speaking = false
	w.silentStreak = 0
}

// ExtractSpeech is not supported by the streaming webrtcvad engine; callers
// needing silence trimming should configure RMSVAD instead.
func (w *WebRTCVAD) ExtractSpeech(pcm []byte) ([]byte, bool) {
	return pcm, false
}

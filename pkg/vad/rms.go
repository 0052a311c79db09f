package vad

import (
	"github.com/vocodex/listener/pkg/chunk"
)

// RMSVAD is a debiased-RMS-energy voice activity detector with frame-count
// hysteresis. Generalized from pkg/orchestrator/vad.go's RMSVAD, which used
// wall-clock timers (time.Now/time.Duration) for its silence hold; here the
// hold is a chunk count instead, so behavior is reproducible from a fixed
// sequence of test chunks rather than real time.
type RMSVAD struct {
	format    chunk.Format
	threshold float64

	minConfirmFrames  int // consecutive loud frames to confirm speech start
	minSilenceFrames  int // consecutive quiet frames to confirm speech end

	speaking     bool
	loudStreak   int
	silentStreak int
	lastEnergy   float64
}

// NewRMSVAD builds a detector at threshold over format, holding speech
// state until minSilenceFrames consecutive quiet chunks are seen.
func NewRMSVAD(format chunk.Format, threshold float64, minConfirmFrames, minSilenceFrames int) *RMSVAD {
	if minConfirmFrames < 1 {
		minConfirmFrames = 1
	}
	if minSilenceFrames < 1 {
		minSilenceFrames = 1
	}
	return &RMSVAD{
		format:           format,
		threshold:        threshold,
		minConfirmFrames: minConfirmFrames,
		minSilenceFrames: minSilenceFrames,
	}
}

func (v *RMSVAD) Name() string { return "rms_vad" }

func (v *RMSVAD) LastEnergy() float64 { return v.lastEnergy }

func (v *RMSVAD) SetThreshold(t float64) { v.threshold = t }

func (v *RMSVAD) IsSpeech(data []byte) bool {
	energy := chunk.DebiasedEnergy(data, v.format.SampleWidth)
	v.lastEnergy = energy

	if energy > v.threshold {
		v.silentStreak = 0
		v.loudStreak++
		if !v.speaking && v.loudStreak >= v.minConfirmFrames {
			v.speaking = true
		}
		return v.speaking
	}

	v.loudStreak = 0
	if v.speaking {
		v.silentStreak++
		if v.silentStreak >= v.minSilenceFrames {
			v.speaking = false
		}
	}
	return v.speaking
}

func (v *RMSVAD) Reset() {
	v.speaking = false
	v.loudStreak = 0
	v.silentStreak = 0
}

// ExtractSpeech trims pcm to the span between the first and last chunk of
// sustained speech. Per spec, trimming is skipped (ok=false) if the
// trimmed result would be shorter than one second.
func (v *RMSVAD) ExtractSpeech(pcm []byte) (trimmed []byte, ok bool) {
	bytesPerSecond := v.format.SampleRate * v.format.SampleWidth * v.format.SampleChannels
	if bytesPerSecond == 0 || len(pcm) <= bytesPerSecond {
		return pcm, false
	}

	frame := 320 // 10ms @ 16kHz/16-bit/mono-equivalent scan window
	if frame > len(pcm) {
		frame = len(pcm)
	}

	local := NewRMSVAD(v.format, v.threshold, v.minConfirmFrames, v.minSilenceFrames)
	start, end := -1, -1
	for i := 0; i+frame <= len(pcm); i += frame {
		if local.IsSpeech(pcm[i : i+frame]) {
			if start == -1 {
				start = i
			}
			end = i + frame
		}
	}
	if start == -1 {
		return pcm, false
	}
	candidate := pcm[start:end]
	if len(candidate) < bytesPerSecond {
		return pcm, false
	}
	return candidate, true
}

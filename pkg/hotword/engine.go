package hotword

import "github.com/vocodex/listener/pkg/chunk"

// Concrete wake-word acoustic modeling is an external collaborator per the
// spec's scope ("concrete wake-word/STT/VAD implementations" are out of
// scope, only their interfaces appear here). The two engines below are the
// reference implementations this module ships: a deterministic fixture
// engine for tests, and a lightweight energy-gated engine usable without any
// loaded model, matching hotwords.py's own note that non-streaming engines
// only need a rolling buffer and "found_wake_word" probe.

// FixedEngine is a test/fixture Engine whose detection result is driven
// entirely by a caller-supplied function, so VoiceLoop tests can script
// exactly which chunk trips a given keyword without any acoustic modeling.
type FixedEngine struct {
	Detect func(audio []byte) bool
	updates int
	resets  int
}

func (f *FixedEngine) FoundWakeWord(audio []byte) bool {
	if f.Detect == nil {
		return false
	}
	return f.Detect(audio)
}
func (f *FixedEngine) Update(chunk []byte) { f.updates++ }
func (f *FixedEngine) Reset()              { f.resets++ }
func (f *FixedEngine) Shutdown()           {}

// Updates reports how many chunks were fed to this engine via Update, for
// tests asserting role-filtered dispatch.
func (f *FixedEngine) Updates() int { return f.updates }

// EnergyGateEngine declares detection whenever the rolling window sustains
// energy above a threshold for a minimum span — a model-free stand-in for a
// real keyword spotter, sufficient for non-semantic "a loud burst happened"
// triggers (confirmation chimes, push-to-talk style hot-words) without
// pulling in an ML dependency this module can't exercise further.
type EnergyGateEngine struct {
	format       chunk.Format
	threshold    float64
	minLoudBytes int
}

// NewEnergyGateEngine builds an engine that splits the probed window into
// back-to-back minLoudBytes frames, starting at its first byte, and fires
// when any one frame's debiased energy exceeds threshold.
func NewEnergyGateEngine(format chunk.Format, threshold float64, minLoudBytes int) *EnergyGateEngine {
	return &EnergyGateEngine{format: format, threshold: threshold, minLoudBytes: minLoudBytes}
}

func (e *EnergyGateEngine) FoundWakeWord(audio []byte) bool {
	if len(audio) < e.minLoudBytes {
		return false
	}
	frame := e.minLoudBytes
	for i := 0; i+frame <= len(audio); i += frame {
		if chunk.DebiasedEnergy(audio[i:i+frame], e.format.SampleWidth) > e.threshold {
			return true
		}
	}
	return false
}

func (e *EnergyGateEngine) Update(chunk []byte) {}
func (e *EnergyGateEngine) Reset()               {}
func (e *EnergyGateEngine) Shutdown()            {}

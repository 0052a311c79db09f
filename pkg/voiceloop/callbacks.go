package voiceloop

import "github.com/vocodex/listener/pkg/stt"

// Callbacks are invoked synchronously on the loop thread, matching
// managed_stream.go's emit() pattern generalized to named, typed hooks
// instead of one event-channel: every field here must return quickly and
// must not block, since it runs between chunk reads (§5's "MUST NOT block"
// rule). Any I/O a callback needs must be handed off to a background
// worker by the caller (Service) — pkg/service.Supervisor does this with
// its own single-consumer job queue (worker.go) for persisted-artifact
// writes, and pkg/bus's WebSocketBus does the equivalent for outbound
// network sends, so neither blocks the goroutine these callbacks run on.
//
// firing order for a single utterance is normative (§5): Listenword ->
// Wake -> STTAudio -> RecordEnd -> Text.
type Callbacks struct {
	// Listenword fires once a wake-word is detected, with the accumulated
	// pre-wake audio and its metadata (engine name, key phrase, ...).
	Listenword func(audio []byte, meta map[string]any)

	// Wake fires immediately after Listenword — record_begin.
	Wake func()

	// Wakeup fires when CHECK_WAKE_UP confirms a wake-up-word hit.
	Wakeup func()
	// WakeupAudio optionally delivers the audio that triggered Wakeup.
	WakeupAudio func(audio []byte, meta map[string]any)

	// STTAudio fires at AFTER_COMMAND, after transcription and before
	// RecordEnd and Text, with the full captured utterance audio and its
	// transform metadata; the transcripts themselves are not passed to it.
	STTAudio func(audio []byte, meta map[string]any)

	// RecordEnd fires once the command recording has finished, for both
	// the wake-word command path and the free-recording path.
	RecordEnd func()

	// Text delivers the final ranked, filtered transcript list plus
	// metadata for the completed command.
	Text func(transcripts []stt.Transcript, meta map[string]any)

	// UnknownSpeech fires instead of Text when WAKEWORD/HYBRID mode ends a
	// command with zero transcripts (CONTINUOUS silently drops it).
	UnknownSpeech func()

	// Recording delivers one free-recording session's captured audio when
	// it completes (stop-word hit or max-silence timeout).
	Recording func(audio []byte)

	// Chunk, if set, is invoked every processed chunk with its debiased
	// RMS energy (possibly of a muted/silent chunk).
	Chunk func(energy float64)

	// Hot fires when a "hot" role hotword is detected outside of any
	// other transition (bus_event or textual utterance injection).
	Hot func(name string, busEvent string, utterance string)

	// ReloadEligible reports a recoverable condition (hotword.ErrNoListenEngines)
	// so the Service can trigger a hotword reload.
	ReloadEligible func(err error)

	// Error reports audio-source read errors, hot-word errors raised in
	// CHECK_WAKE_UP and RECORDING, and any panic recovered while a chunk is
	// processed (callbacks included); the loop continues after each.
	Error func(err error)
}

func (c Callbacks) fireListenword(audio []byte, meta map[string]any) {
	if c.Listenword != nil {
		c.Listenword(audio, meta)
	}
}
func (c Callbacks) fireWake() {
	if c.Wake != nil {
		c.Wake()
	}
}
func (c Callbacks) fireWakeup() {
	if c.Wakeup != nil {
		c.Wakeup()
	}
}
func (c Callbacks) fireWakeupAudio(audio []byte, meta map[string]any) {
	if c.WakeupAudio != nil {
		c.WakeupAudio(audio, meta)
	}
}
func (c Callbacks) fireSTTAudio(audio []byte, meta map[string]any) {
	if c.STTAudio != nil {
		c.STTAudio(audio, meta)
	}
}
func (c Callbacks) fireRecordEnd() {
	if c.RecordEnd != nil {
		c.RecordEnd()
	}
}
func (c Callbacks) fireText(ts []stt.Transcript, meta map[string]any) {
	if c.Text != nil {
		c.Text(ts, meta)
	}
}
func (c Callbacks) fireUnknownSpeech() {
	if c.UnknownSpeech != nil {
		c.UnknownSpeech()
	}
}
func (c Callbacks) fireRecording(audio []byte) {
	if c.Recording != nil {
		c.Recording(audio)
	}
}
func (c Callbacks) fireChunk(energy float64) {
	if c.Chunk != nil {
		c.Chunk(energy)
	}
}
func (c Callbacks) fireHot(name, busEvent, utterance string) {
	if c.Hot != nil {
		c.Hot(name, busEvent, utterance)
	}
}
func (c Callbacks) fireReloadEligible(err error) {
	if c.ReloadEligible != nil {
		c.ReloadEligible(err)
	}
}
func (c Callbacks) fireError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

package voiceloop

import (
	"math"

	"github.com/vocodex/listener/pkg/chunk"
)

// Config holds the timing parameters and flags from SPEC_FULL.md §4.7.
// Durations are expressed in seconds, matching the configuration file; the
// loop converts them to chunk counts once at construction via counts(),
// keeping every internal countdown chunk-denominated instead of wall-clock
// based, so a test can drive the state machine deterministically by feeding
// a fixed sequence of chunks.
type Config struct {
	SpeechSeconds                  float64
	SilenceSeconds                 float64
	TimeoutSeconds                 float64
	TimeoutSecondsWithSilence       float64
	ConfirmationSeconds            float64
	RecordingModeMaxSilenceSeconds float64

	NumSTTRewindChunks  int
	NumHotwordKeepChunks int

	InstantListen  bool
	RemoveSilence  bool
	MinSTTConfidence float64
	MaxTranscripts int

	Lang           string
	SecondaryLangs []string

	FilterHallucinations bool
	HallucinationList    []string

	// WakeupTimeoutSeconds bounds CHECK_WAKE_UP: if no wake-up-word hit
	// arrives within this many seconds of entering the state, the loop
	// falls back to SLEEPING. Spec default is 10s.
	WakeupTimeoutSeconds float64

	// SourceTimeoutSeconds bounds how long the audio source may produce
	// nothing but transient reads before Run reports ErrAudioSourceTimeout
	// (§4.1's "cannot produce audio for longer than a configured timeout").
	SourceTimeoutSeconds float64
}

// DefaultConfig mirrors the defaults listed in SPEC_FULL.md §4.7.
func DefaultConfig() Config {
	return Config{
		SpeechSeconds:                   0.3,
		SilenceSeconds:                  0.7,
		TimeoutSeconds:                  10,
		TimeoutSecondsWithSilence:       5,
		ConfirmationSeconds:             0.5,
		RecordingModeMaxSilenceSeconds:  30,
		NumSTTRewindChunks:              2,
		NumHotwordKeepChunks:            15,
		MinSTTConfidence:                0.6,
		MaxTranscripts:                  1,
		Lang:                            "en-us",
		FilterHallucinations:            true,
		HallucinationList: []string{
			"thanks for watching!",
			"thank you for watching!",
			"so",
			"beep!",
		},
		WakeupTimeoutSeconds: 10,
		SourceTimeoutSeconds: 30,
	}
}

// counts is the Config translated into whole chunk counts for a given
// format/chunkSize, used to seed every countdown timer at the top of the
// state it governs.
type counts struct {
	speech                  int
	silence                 int
	timeout                 int
	timeoutWithSilence      int
	confirmation            int
	recordingMaxSilence     int
	wakeupTimeout           int
}

func (c Config) counts(format chunk.Format, chunkSize int) counts {
	perChunk := format.SecondsPerChunk(chunkSize)
	return counts{
		speech:              toChunkCount(c.SpeechSeconds, perChunk),
		silence:             toChunkCount(c.SilenceSeconds, perChunk),
		timeout:             toChunkCount(c.TimeoutSeconds, perChunk),
		timeoutWithSilence:  toChunkCount(c.TimeoutSecondsWithSilence, perChunk),
		confirmation:        toChunkCount(c.ConfirmationSeconds, perChunk),
		recordingMaxSilence: toChunkCount(c.RecordingModeMaxSilenceSeconds, perChunk),
		wakeupTimeout:       toChunkCount(c.WakeupTimeoutSeconds, perChunk),
	}
}

func toChunkCount(seconds, perChunk float64) int {
	if perChunk <= 0 {
		return 1
	}
	n := int(math.Ceil(seconds / perChunk))
	if n < 1 {
		n = 1
	}
	return n
}

// rewindCapacity resolves DESIGN.md Open Question #2: CONTINUOUS mode keeps
// a deeper rewind window (3*(n+1)) since WAITING_CMD pushes every chunk into
// it until speech is confirmed, while every other mode only needs enough
// lead-in to cover the word boundary itself (n+1). AFTER_COMMAND clears the
// deque in every mode, so no rewound audio carries over between commands.
func (c Config) rewindCapacity(mode Mode) int {
	n := c.NumSTTRewindChunks
	if mode == ModeContinuous {
		return 3 * (n + 1)
	}
	return n + 1
}

package voiceloop

import "errors"

// Sentinel errors, following pkg/orchestrator/errors.go's flat var-block
// pattern. See SPEC_FULL.md §7 for the transient/recoverable/fatal taxonomy.
var (
	// ErrEmptyTranscription marks a transcribe() call that returned no
	// transcripts at all (not the same as a low-confidence result).
	ErrEmptyTranscription = errors.New("voiceloop: transcription returned no results")

	// ErrNoListenEngines is recoverable: the loop is in LISTEN and the
	// hotword set has no engine willing to watch for it.
	ErrNoListenEngines = errors.New("voiceloop: no listen engines loaded")

	// ErrAudioSourceTimeout is fatal: the microphone produced no audio for
	// longer than the configured timeout.
	ErrAudioSourceTimeout = errors.New("voiceloop: audio source timed out")

	// ErrReloadTimeout is fatal: a configuration reload could not acquire
	// the reload lock within its deadline.
	ErrReloadTimeout = errors.New("voiceloop: reload lock timed out")
)

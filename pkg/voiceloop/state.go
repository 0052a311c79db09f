// Package voiceloop implements the per-chunk voice-interaction state
// machine: wake-word detection, VAD-timed command recording, streaming STT
// with fallback, and the transformer pipeline, grounded on
// original_source/ovos_dinkum_listener/voice_loop/voice_loop.py and the
// mutex-guarded single-threaded dispatch pattern of
// pkg/orchestrator/managed_stream.go.
package voiceloop

// Mode selects how the loop re-arms after a command finishes.
type Mode int

const (
	ModeWakeword Mode = iota
	ModeContinuous
	ModeHybrid
	ModeSleeping
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModeHybrid:
		return "hybrid"
	case ModeSleeping:
		return "sleeping"
	default:
		return "wakeword"
	}
}

// State is one node of the per-chunk dispatch table in SPEC_FULL.md §4.7.
type State int

const (
	StateDetectWakeword State = iota
	StateWaitingCmd
	StateSleeping
	StateCheckWakeUp
	StateConfirmation
	StateBeforeCommand
	StateInCommand
	StateAfterCommand
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateDetectWakeword:
		return "detect_wakeword"
	case StateWaitingCmd:
		return "waiting_cmd"
	case StateSleeping:
		return "sleeping"
	case StateCheckWakeUp:
		return "check_wake_up"
	case StateConfirmation:
		return "confirmation"
	case StateBeforeCommand:
		return "before_command"
	case StateInCommand:
		return "in_command"
	case StateAfterCommand:
		return "after_command"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

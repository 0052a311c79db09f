// Package service wires the voice loop to the message bus: command
// handlers, confirmation-sound timing, WAV/JSON artifact persistence, fake
// barge-in volume tracking, config-hash reload orchestration, and the
// base64 one-shot transcription RPC. Grounded on
// original_source/ovos_dinkum_listener/service.py's OVOSDinkumVoiceService.
package service

import (
	"context"

	"github.com/vocodex/listener/pkg/voiceloop"
)

// Loop is the subset of *voiceloop.VoiceLoop the supervisor needs, narrowed
// to an interface so handler wiring can be exercised against a fake loop in
// tests instead of a real audio/hotword/STT stack.
type Loop interface {
	Run(ctx context.Context) error
	State() voiceloop.State
	Mode() voiceloop.Mode
	SetMuted(bool)
	IsMuted() bool
	SetSkipNextWake(bool)
	SetListenNow(playConfirmation bool)
	Acknowledge()
	RequestState(voiceloop.State)
	RequestMode(voiceloop.Mode)
	RequestStopRecording()
	NotifySkillActivated()
}

var _ Loop = (*voiceloop.VoiceLoop)(nil)

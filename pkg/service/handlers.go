package service

import (
	"github.com/vocodex/listener/pkg/bus"
	"github.com/vocodex/listener/pkg/voiceloop"
)

// registerHandlers wires every bus topic this supervisor reacts to,
// mirroring service.py's register_event_handlers, and returns a function
// that removes them all.
func (s *Supervisor) registerHandlers() func() {
	subs := []func(){
		s.bus.On("mycroft.mic.mute", s.handleMute),
		s.bus.On("mycroft.mic.unmute", s.handleUnmute),
		s.bus.On("mycroft.mic.mute.toggle", s.handleMuteToggle),

		s.bus.On("mycroft.mic.listen", s.handleListen),
		s.bus.On("mycroft.mic.get_status", s.handleMicGetStatus),
		s.bus.On("recognizer_loop:audio_output_start", s.handleAudioStart),
		s.bus.On("recognizer_loop:audio_output_end", s.handleAudioEnd),
		s.bus.On("mycroft.stop", s.handleStop),

		s.bus.On("recognizer_loop:sleep", s.handleSleep),
		s.bus.On("recognizer_loop:wake_up", s.handleWakeUp),
		s.bus.On("recognizer_loop:b64_transcribe", s.handleB64Transcribe),
		s.bus.On("recognizer_loop:b64_audio", s.handleB64Audio),
		s.bus.On("recognizer_loop:record_stop", s.handleStopRecording),
		s.bus.On("recognizer_loop:state.set", s.handleChangeState),
		s.bus.On("recognizer_loop:state.get", s.handleGetState),
		s.bus.On("intent.service.skills.activated", s.handleExtendListening),

		s.bus.On("ovos.languages.stt", s.handleGetLanguagesSTT),

		s.bus.On("mycroft.audio.play_sound.response", s.handleSoundPlayed),

		s.bus.On("volume.set.percent", s.handleVolumeChange),
		s.bus.On("mycroft.volume.increase", s.handleVolumeChange),
		s.bus.On("mycroft.volume.decrease", s.handleVolumeChange),
	}
	return func() {
		for _, unsub := range subs {
			unsub()
		}
	}
}

func (s *Supervisor) handleMute(bus.Message) error {
	s.currentLoop().SetMuted(true)
	return nil
}

func (s *Supervisor) handleUnmute(bus.Message) error {
	s.currentLoop().SetMuted(false)
	return nil
}

func (s *Supervisor) handleMuteToggle(bus.Message) error {
	l := s.currentLoop()
	l.SetMuted(!l.IsMuted())
	return nil
}

func (s *Supervisor) handleListen(bus.Message) error {
	s.currentLoop().SetListenNow(s.cfg.ConfirmListening)
	if s.cfg.ConfirmListening && s.cfg.Sounds.StartListening != "" {
		s.emit("mycroft.audio.play_sound", map[string]any{"uri": s.cfg.Sounds.StartListening})
	}
	return nil
}

func (s *Supervisor) handleMicGetStatus(bus.Message) error {
	s.emit("mycroft.mic.get_status.response", map[string]any{"muted": s.currentLoop().IsMuted()})
	return nil
}

func (s *Supervisor) handleAudioStart(bus.Message) error {
	if s.cfg.Listener.MuteDuringOutput {
		s.currentLoop().SetMuted(true)
	}
	return nil
}

func (s *Supervisor) handleAudioEnd(bus.Message) error {
	if s.cfg.Listener.MuteDuringOutput {
		s.currentLoop().SetMuted(false)
	}
	return nil
}

func (s *Supervisor) handleStop(bus.Message) error {
	s.currentLoop().SetMuted(false)
	return nil
}

func (s *Supervisor) handleChangeState(msg bus.Message) error {
	state, _ := msg.Data["state"].(string)
	mode, _ := msg.Data["mode"].(string)
	loop := s.currentLoop()

	switch state {
	case "":
	case "sleeping":
		loop.RequestState(voiceloop.StateSleeping)
	case "detect_wakeword", "waiting_cmd":
		loop.RequestState(s.wakeState())
	case "recording":
		name, _ := msg.Data["recording_name"].(string)
		s.mu.Lock()
		s.recordingName = name
		s.mu.Unlock()
		loop.RequestState(voiceloop.StateRecording)
	default:
		s.logger.Printf("service: invalid listening state %q", state)
	}

	switch mode {
	case "":
	case "wakeword":
		loop.RequestMode(voiceloop.ModeWakeword)
	case "continuous":
		loop.RequestMode(voiceloop.ModeContinuous)
	case "hybrid":
		loop.RequestMode(voiceloop.ModeHybrid)
	case "sleeping":
		loop.RequestMode(voiceloop.ModeSleeping)
	default:
		s.logger.Printf("service: invalid listen mode %q", mode)
	}

	return s.handleGetState(msg)
}

func (s *Supervisor) handleGetState(bus.Message) error {
	loop := s.currentLoop()
	s.emit("recognizer_loop:state", map[string]any{
		"mode":  loop.Mode().String(),
		"state": loop.State().String(),
	})
	return nil
}

func (s *Supervisor) handleStopRecording(bus.Message) error {
	s.currentLoop().RequestStopRecording()
	if s.cfg.Sounds.EndListening != "" {
		s.emit("mycroft.audio.play_sound", map[string]any{"uri": s.cfg.Sounds.EndListening})
	}
	return nil
}

func (s *Supervisor) handleExtendListening(bus.Message) error {
	s.currentLoop().NotifySkillActivated()
	return nil
}

func (s *Supervisor) handleSleep(bus.Message) error {
	s.currentLoop().RequestState(voiceloop.StateSleeping)
	return nil
}

func (s *Supervisor) handleWakeUp(bus.Message) error {
	s.currentLoop().RequestState(s.wakeState())
	return nil
}

func (s *Supervisor) handleSoundPlayed(bus.Message) error {
	s.currentLoop().Acknowledge()
	return nil
}

func (s *Supervisor) handleGetLanguagesSTT(msg bus.Message) error {
	langs := []string{s.cfg.Lang}
	langs = append(langs, s.cfg.SecondaryLangs...)
	s.emit("ovos.languages.stt.response", map[string]any{"langs": langs})
	return nil
}

// handleVolumeChange keeps _default_vol in sync with user-issued volume
// commands so fake barge-in can restore the level it overrode, ignoring
// this supervisor's own tagged commands.
func (s *Supervisor) handleVolumeChange(msg bus.Message) error {
	if !s.cfg.Listener.FakeBargeIn {
		return nil
	}
	if skillID, _ := msg.Data["skill_id"].(string); skillID == selfSkillID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Type {
	case "mycroft.volume.increase":
		s.defaultVol += percentField(msg.Data, "percent", 0.1)
	case "mycroft.volume.decrease":
		s.defaultVol -= percentField(msg.Data, "percent", 0.1)
	default:
		s.defaultVol = percentField(msg.Data, "percent", 0)
	}
	s.logger.Printf("service: tracking user volume for after barge-in: %d", s.defaultVol)
	return nil
}

func percentField(data map[string]any, key string, fallback float64) int {
	v, ok := data[key].(float64)
	if !ok {
		v = fallback
	}
	if v < 0 {
		v = -v
	}
	return int(v * 100)
}

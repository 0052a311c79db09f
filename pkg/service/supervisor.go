package service

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vocodex/listener/pkg/bus"
	"github.com/vocodex/listener/pkg/chunk"
	"github.com/vocodex/listener/pkg/config"
	"github.com/vocodex/listener/pkg/stt"
	"github.com/vocodex/listener/pkg/voiceloop"
)

// selfSkillID tags outbound volume commands this supervisor emits for its
// own fake barge-in, so _handle_volume_change-equivalent tracking can
// ignore its own echo instead of treating it as a real user volume change.
const selfSkillID = "vocodex-listener"

// LoopFactory rebuilds a Loop from a freshly loaded configuration and raw
// hotword manifest bytes, used by Reload when a config-hash slice changes.
// Supplying one is optional; without it Reload returns ErrNoLoopFactory
// whenever a changed slice calls for a loop rebuild.
type LoopFactory func(cfg config.ServiceConfig, hotwordManifestRaw []byte) (Loop, error)

// Params bundles a Supervisor's collaborators. Loop may be nil at
// construction time — build Callbacks first, hand them to the VoiceLoop
// constructor, then call SetLoop.
type Params struct {
	Bus    bus.Bus
	Config config.ServiceConfig

	// STT powers the base64 one-shot transcription RPC handlers; optional.
	STT stt.Streamer

	Loop        Loop
	LoopFactory LoopFactory
	ManifestRaw []byte

	Logger *log.Logger
	Now    func() time.Time
}

// Supervisor is the bus-facing half of the listener: it owns no audio
// hardware of its own, delegating all state-machine work to a Loop and
// reacting to its callbacks by persisting artifacts, emitting bus events,
// and tracking volume for fake barge-in. Grounded on
// original_source/ovos_dinkum_listener/service.py's OVOSDinkumVoiceService.
type Supervisor struct {
	bus    bus.Bus
	cfg    config.ServiceConfig
	sttRPC stt.Streamer

	loopFactory LoopFactory
	manifestRaw []byte

	logger    *log.Logger
	now       func() time.Time
	sessionID string

	mu            sync.Mutex
	loop          Loop
	cancelRun     context.CancelFunc
	defaultVol    int
	recordingName string

	reloadSem   chan struct{}
	appliedHash config.Slices

	jobs         chan func()
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	// DisableReload, DisableFallbackReload, and DisableHotwordReload mirror
	// service.py's disable_reload/disable_fallback/disable_hotword_reload
	// flags: set when the corresponding component was supplied directly by
	// the caller instead of built from config, so a config edit shouldn't
	// tear it down.
	DisableReload         bool
	DisableFallbackReload bool
	DisableHotwordReload  bool
}

// New builds a Supervisor. p.Loop may be left nil and set later via SetLoop
// once the VoiceLoop has been constructed with this Supervisor's Callbacks.
func New(p Params) *Supervisor {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	s := &Supervisor{
		bus:         p.Bus,
		cfg:         p.Config,
		sttRPC:      p.STT,
		loop:        p.Loop,
		loopFactory: p.LoopFactory,
		manifestRaw: p.ManifestRaw,
		logger:      logger,
		now:         now,
		sessionID:   uuid.NewString(),
		defaultVol:  100,
		reloadSem:   make(chan struct{}, 1),
	}
	s.appliedHash = config.Hash(p.Config, p.ManifestRaw)
	s.startWorker()
	return s
}

// SetLoop installs the Loop built from this Supervisor's Callbacks. Safe to
// call concurrently with Run.
func (s *Supervisor) SetLoop(l Loop) {
	s.mu.Lock()
	s.loop = l
	s.mu.Unlock()
}

func (s *Supervisor) currentLoop() Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

func (s *Supervisor) clock() time.Time { return s.now() }

func (s *Supervisor) savePath() string {
	if s.cfg.Listener.SavePath != "" {
		return s.cfg.Listener.SavePath
	}
	return "."
}

func (s *Supervisor) audioFormat() chunk.Format {
	return chunk.Format{
		SampleRate:     s.cfg.Listener.SampleRate,
		SampleWidth:    s.cfg.Listener.SampleWidth,
		SampleChannels: s.cfg.Listener.SampleChannels,
	}
}

func (s *Supervisor) wakeState() voiceloop.State {
	if s.currentLoop().Mode() == voiceloop.ModeContinuous {
		return voiceloop.StateWaitingCmd
	}
	return voiceloop.StateDetectWakeword
}

func (s *Supervisor) emit(msgType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if err := s.bus.Emit(bus.Message{Type: msgType, Data: data}); err != nil {
		s.logger.Printf("service: emit %s: %v", msgType, err)
	}
}

// emitWithContext merges mycroft-style "context" fields (skill_id,
// destination, lang override, ...) into data before emitting, since
// bus.Message carries a single flat payload rather than the original's
// separate data/context pair.
func (s *Supervisor) emitWithContext(msgType string, data, context map[string]any) {
	merged := make(map[string]any, len(data)+len(context))
	for k, v := range context {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	s.emit(msgType, merged)
}

func (s *Supervisor) emitSelf(msgType string, data map[string]any) {
	merged := make(map[string]any, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["skill_id"] = selfSkillID
	s.emit(msgType, merged)
}

func normalizeKeyPhrase(name string) string {
	r := strings.NewReplacer("_", " ", "-", " ")
	return r.Replace(name)
}

// Callbacks builds the voiceloop.Callbacks this supervisor reacts to. Build
// these before constructing the VoiceLoop, then pass the loop to SetLoop.
func (s *Supervisor) Callbacks() voiceloop.Callbacks {
	return voiceloop.Callbacks{
		Wake:           s.onWake,
		Wakeup:         s.onWakeup,
		Listenword:     s.onListenword,
		STTAudio:       s.onSTTAudio,
		RecordEnd:      s.onRecordEnd,
		Text:           s.onText,
		UnknownSpeech:  s.onUnknownSpeech,
		Recording:      s.onRecording,
		Hot:            s.onHot,
		ReloadEligible: s.onReloadEligible,
		Error:          s.onError,
	}
}

func (s *Supervisor) onWake() {
	if s.cfg.Listener.FakeBargeIn {
		vol := s.cfg.Listener.BargeInVolume
		s.logger.Printf("service: fake barge-in lowering volume to %.2f", vol)
		s.emitSelf("mycroft.volume.set", map[string]any{"percent": vol, "play_sound": false})
	}
	s.emit("recognizer_loop:record_begin", nil)
}

func (s *Supervisor) onRecordEnd() {
	if s.cfg.Listener.FakeBargeIn {
		s.mu.Lock()
		vol := s.defaultVol
		s.mu.Unlock()
		s.logger.Printf("service: fake barge-in restoring volume to %d", vol)
		s.emitSelf("mycroft.volume.set", map[string]any{"percent": float64(vol) / 100, "play_sound": false})
	}
	s.emit("recognizer_loop:record_end", nil)
}

func (s *Supervisor) onWakeup() {
	s.emit("mycroft.awoken", nil)
}

func (s *Supervisor) onListenword(audioBytes []byte, meta map[string]any) {
	name, _ := meta["name"].(string)
	engine, _ := meta["engine"].(string)

	busCtx := map[string]any{
		"client_name": "vocodex_listener",
		"source":      "audio",
		"destination": []string{"skills"},
	}

	payload := map[string]any{"name": name, "engine": engine}
	if s.cfg.Listener.RecordWakeWords && name != "" {
		dir := filepath.Join(s.savePath(), "wake_words")
		payload["filename"] = s.saveWakewordAsync(dir, audioBytes, s.audioFormat(), name, engine)
	}
	payload["utterance"] = normalizeKeyPhrase(name)
	s.emitWithContext("recognizer_loop:wakeword", payload, busCtx)
}

func (s *Supervisor) onSTTAudio(audioBytes []byte, meta map[string]any) {
	if !s.cfg.Listener.SaveUtterances {
		return
	}
	dir := filepath.Join(s.savePath(), "utterances")
	// meta is the same map instance the loop will hand to onText right
	// after, so the filename (known as soon as the template renders, ahead
	// of the bytes actually landing on disk) must be set here rather than
	// from the background write job.
	meta["filename"] = s.saveUtteranceAsync(dir, audioBytes, s.audioFormat(), nil, meta)
}

func (s *Supervisor) onText(transcripts []stt.Transcript, meta map[string]any) {
	lang, _ := meta["stt_lang"].(string)
	if lang == "" {
		lang = s.cfg.Lang
	}
	utterances := make([]string, 0, len(transcripts))
	for _, t := range transcripts {
		utterances = append(utterances, strings.Trim(t.Text, " \"'"))
	}
	s.emitWithContext("recognizer_loop:utterance", map[string]any{
		"utterances": utterances,
		"lang":       lang,
	}, meta)
}

func (s *Supervisor) onUnknownSpeech() {
	s.emit("recognizer_loop:speech.recognition.unknown", nil)
}

func (s *Supervisor) onRecording(audioBytes []byte) {
	s.mu.Lock()
	name := s.recordingName
	s.recordingName = ""
	s.mu.Unlock()

	dir := filepath.Join(s.savePath(), "recordings")
	meta := map[string]any{"recording_name": name}
	uri := s.saveRecordingAsync(dir, audioBytes, s.audioFormat(), name, meta)
	s.emit("recognizer_loop:recording", map[string]any{"filename": uri, "recording_name": name})
}

func (s *Supervisor) onHot(name, busEvent, utterance string) {
	busCtx := map[string]any{
		"client_name": "vocodex_listener",
		"source":      "audio",
		"destination": []string{"skills"},
	}
	if utterance != "" {
		s.emitWithContext("recognizer_loop:utterance", map[string]any{
			"utterances": []string{utterance},
			"lang":       s.cfg.Lang,
		}, busCtx)
		return
	}
	msgType := busEvent
	if msgType == "" {
		msgType = "recognizer_loop:hotword"
	}
	s.emitWithContext(msgType, map[string]any{"name": name}, busCtx)
}

func (s *Supervisor) onReloadEligible(err error) {
	s.logger.Printf("service: hotword reload eligible: %v", err)
	s.emit("listener.hotwords.reload_needed", map[string]any{"error": err.Error()})
}

func (s *Supervisor) onError(err error) {
	s.logger.Printf("service: loop error: %v", err)
	s.emit("listener.error", map[string]any{"error": err.Error()})
}

package voiceloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocodex/listener/pkg/audio"
	"github.com/vocodex/listener/pkg/chunk"
	"github.com/vocodex/listener/pkg/hotword"
	"github.com/vocodex/listener/pkg/stt"
	"github.com/vocodex/listener/pkg/transform"
	"github.com/vocodex/listener/pkg/vad"
)

// Params bundles every collaborator VoiceLoop needs. All fields are
// required except Fallback, SoundDuration, and Now.
type Params struct {
	Source       audio.Source
	VAD          vad.Detector
	Hotwords     *hotword.Set
	Transformers *transform.Chain
	Primary      stt.Streamer
	Fallback     stt.Streamer // optional

	Config        Config
	Callbacks     Callbacks
	SoundDuration SoundDurationLookup // optional

	// Now is injectable for deterministic tests of the CHECK_WAKE_UP
	// wall-clock timeout; defaults to time.Now.
	Now func() time.Time
}

// VoiceLoop is the single-threaded cooperative per-chunk dispatch loop.
// Every field below mu is owned exclusively by the goroutine running Run;
// mu guards the small set of fields other goroutines (bus handlers) may
// observe or request changes to, matching managed_stream.go's externally-
// settable-field convention.
type VoiceLoop struct {
	source       audio.Source
	vadEngine    vad.Detector
	hotwords     *hotword.Set
	transformers *transform.Chain
	primary      stt.Streamer
	fallback     stt.Streamer

	cfg           Config
	cnt           counts
	callbacks     Callbacks
	soundDuration SoundDurationLookup
	now           func() time.Time

	format    chunk.Format
	chunkSize int

	mu           sync.Mutex
	mode         Mode
	state        State
	isMuted      bool
	skipNextWake bool
	listenNowConfirm bool
	confirmAck   bool
	pendingState *State
	pendingMode  *Mode
	stopRecordingRequested bool
	lastWW       time.Time
	running      bool

	// loop-owned (no lock needed: single writer/reader, the Run goroutine)
	rewindDeque    *chunkDeque
	hotwordChunks  *chunkDeque
	sttAccumulator bytes.Buffer
	recordingBuf   bytes.Buffer

	speechLeft             int
	silenceLeft            int
	timeoutLeft            int
	timeoutWithSilenceLeft int
	confirmationLeft       int
	recordingSilenceLeft   int

	consecutiveTimeouts int
}

// New builds a VoiceLoop in StateDetectWakeword, ModeWakeword.
func New(p Params) *VoiceLoop {
	format := p.Source.Format()
	chunkSize := p.Source.ChunkSize()
	cfg := p.Config
	now := p.Now
	if now == nil {
		now = time.Now
	}

	l := &VoiceLoop{
		source:        p.Source,
		vadEngine:     p.VAD,
		hotwords:      p.Hotwords,
		transformers:  p.Transformers,
		primary:       p.Primary,
		fallback:      p.Fallback,
		cfg:           cfg,
		cnt:           cfg.counts(format, chunkSize),
		callbacks:     p.Callbacks,
		soundDuration: p.SoundDuration,
		now:           now,
		format:        format,
		chunkSize:     chunkSize,
		mode:          ModeWakeword,
		state:         StateDetectWakeword,
	}
	l.rewindDeque = newChunkDeque(cfg.rewindCapacity(l.mode))
	l.hotwordChunks = newChunkDeque(cfg.NumHotwordKeepChunks)
	return l
}

// State/Mode expose the current values for the Service's state.get handler.
func (l *VoiceLoop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *VoiceLoop) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// --- externally-settable fields ---

func (l *VoiceLoop) SetMuted(v bool) {
	l.mu.Lock()
	l.isMuted = v
	l.mu.Unlock()
}

func (l *VoiceLoop) IsMuted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isMuted
}

func (l *VoiceLoop) SetSkipNextWake(v bool) {
	l.mu.Lock()
	l.skipNextWake = v
	l.mu.Unlock()
}

// SetListenNow forces a synthetic wake on the next chunk, skipping the
// keyword spotter — the bus's "listen now" command. playConfirmation
// decides whether the synthetic wake plays a confirmation sound (entering
// CONFIRMATION) or goes straight to BEFORE_COMMAND.
func (l *VoiceLoop) SetListenNow(playConfirmation bool) {
	l.mu.Lock()
	l.skipNextWake = true
	l.listenNowConfirm = playConfirmation
	l.mu.Unlock()
}

// Acknowledge signals that a confirmation sound finished playing,
// short-circuiting the CONFIRMATION countdown.
func (l *VoiceLoop) Acknowledge() {
	l.mu.Lock()
	l.confirmAck = true
	l.mu.Unlock()
}

// RequestState queues a state transition applied at the next chunk
// boundary — the bus's state.set{state} command, and how Service starts a
// free-recording session (RequestState(StateRecording)).
func (l *VoiceLoop) RequestState(s State) {
	l.mu.Lock()
	l.pendingState = &s
	l.mu.Unlock()
}

// RequestMode queues a listen-mode change applied at the next chunk
// boundary.
func (l *VoiceLoop) RequestMode(m Mode) {
	l.mu.Lock()
	l.pendingMode = &m
	l.mu.Unlock()
}

// RequestStopRecording ends an active free recording at the next chunk
// boundary regardless of the silence countdown — the bus's record_stop.
func (l *VoiceLoop) RequestStopRecording() {
	l.mu.Lock()
	l.stopRecordingRequested = true
	l.mu.Unlock()
}

// NotifySkillActivated pushes lastWW forward in HYBRID mode, the bus's
// skills.activated handling per §6.
func (l *VoiceLoop) NotifySkillActivated() {
	l.mu.Lock()
	if l.mode == ModeHybrid {
		l.lastWW = l.now()
	}
	l.mu.Unlock()
}

func (l *VoiceLoop) consumeSkipNextWake() (skip, confirm bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	skip = l.skipNextWake
	confirm = l.listenNowConfirm
	l.skipNextWake = false
	l.listenNowConfirm = false
	return
}

func (l *VoiceLoop) consumeAck() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ack := l.confirmAck
	l.confirmAck = false
	return ack
}

func (l *VoiceLoop) takePendingState() *State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.pendingState
	l.pendingState = nil
	return s
}

func (l *VoiceLoop) takePendingMode() *Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.pendingMode
	l.pendingMode = nil
	return m
}

func (l *VoiceLoop) takeStopRecordingRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.stopRecordingRequested
	l.stopRecordingRequested = false
	return v
}

func (l *VoiceLoop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// --- run loop ---

// Run drives the per-chunk dispatch until ctx is cancelled or a fatal
// error occurs (ErrAudioSourceTimeout). It blocks until then.
func (l *VoiceLoop) Run(ctx context.Context) error {
	if err := l.source.Start(ctx); err != nil {
		return err
	}
	defer l.source.Stop()

	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		l.applyPending()

		c, err := l.source.ReadChunk(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.callbacks.fireError(err)
			continue
		}
		if c == nil {
			l.consecutiveTimeouts++
			elapsed := float64(l.consecutiveTimeouts) * audio.DefaultReadTimeout.Seconds()
			if l.cfg.SourceTimeoutSeconds > 0 && elapsed > l.cfg.SourceTimeoutSeconds {
				return ErrAudioSourceTimeout
			}
			continue
		}
		l.consecutiveTimeouts = 0

		data := c.Data
		if l.IsMuted() {
			data = make([]byte, len(data))
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					l.callbacks.fireError(fmt.Errorf("voiceloop: recovered panic: %v", r))
				}
			}()
			l.step(data)

			if l.callbacks.Chunk != nil {
				l.callbacks.fireChunk(chunk.DebiasedEnergy(data, l.format.SampleWidth))
			}
		}()
	}
}

func (l *VoiceLoop) applyPending() {
	if m := l.takePendingMode(); m != nil {
		l.mode = *m
		l.rewindDeque = newChunkDeque(l.cfg.rewindCapacity(l.mode))
	}
	if s := l.takePendingState(); s != nil {
		if *s == StateRecording {
			l.recordingBuf.Reset()
			l.recordingSilenceLeft = l.cnt.recordingMaxSilence
		}
		l.setState(*s)
	}
}

func (l *VoiceLoop) step(data []byte) {
	switch l.State() {
	case StateDetectWakeword:
		l.stepDetectWakeword(data)
	case StateWaitingCmd:
		l.stepWaitingCmd(data)
	case StateSleeping:
		l.stepSleeping(data)
	case StateCheckWakeUp:
		l.stepCheckWakeUp(data)
	case StateConfirmation:
		l.stepConfirmation(data)
	case StateBeforeCommand:
		l.stepBeforeCommand(data)
	case StateInCommand:
		l.stepInCommand(data)
	case StateAfterCommand:
		l.finalizeCommand(data)
	case StateRecording:
		l.stepRecording(data)
	}
}

func (l *VoiceLoop) stepDetectWakeword(data []byte) {
	if l.Mode() == ModeContinuous {
		l.resetCommandTimers()
		l.setState(StateWaitingCmd)
		return
	}
	if l.detectWW(data) {
		return
	}
	if l.detectHot(data) {
		return
	}
	l.transformers.FeedAudio(data)
}

func (l *VoiceLoop) stepWaitingCmd(data []byte) {
	if l.Mode() == ModeContinuous {
		l.rewindDeque.push(data)
	}
	l.detectHot(data)

	if l.vadEngine.IsSpeech(data) {
		l.speechLeft--
		if l.speechLeft <= 0 {
			switch l.Mode() {
			case ModeContinuous:
				l.primary.StreamStart(context.Background(), l.cfg.Lang)
				if l.fallback != nil {
					l.fallback.StreamStart(context.Background(), l.cfg.Lang)
				}
				for _, rc := range l.rewindDeque.drain() {
					l.sttAccumulator.Write(rc)
					l.primary.StreamData(rc)
					if l.fallback != nil {
						l.fallback.StreamData(rc)
					}
				}
				l.silenceLeft = l.cnt.silence
				l.setState(StateInCommand)
			case ModeHybrid:
				l.resetCommandTimers()
				l.setState(StateBeforeCommand)
			}
		}
	} else {
		l.speechLeft = l.cnt.speech
	}
}

// stepSleeping runs the full detectWW routine (listenword/wake callbacks,
// skip_next_wake handling) while the StateSleeping is active, per
// SPEC_FULL.md §4.7's SLEEPING row ("Run _detect_ww only; on detection →
// CHECK_WAKE_UP"). It then forces CHECK_WAKE_UP on any detection regardless
// of whatever state detectWW itself picked, matching _before_wakeup's
// override of _detect_ww's own state assignment.
func (l *VoiceLoop) stepSleeping(data []byte) {
	if l.detectWW(data) {
		l.setState(StateCheckWakeUp)
	}
}

func (l *VoiceLoop) stepCheckWakeUp(data []byte) {
	l.hotwords.SetState(hotword.StateWakeup)
	l.hotwords.Update(data)
	name, err := l.hotwords.Found()
	if err != nil {
		l.callbacks.fireError(err)
	}
	if name != "" {
		l.callbacks.fireWakeup()
		l.lastWW = l.now()
		l.setState(StateDetectWakeword)
		return
	}
	if l.now().Sub(l.lastWW) > time.Duration(l.cfg.WakeupTimeoutSeconds*float64(time.Second)) {
		l.setState(StateSleeping)
	}
}

func (l *VoiceLoop) stepConfirmation(data []byte) {
	if l.cfg.InstantListen {
		l.setState(StateBeforeCommand)
		l.stepBeforeCommand(data)
		return
	}
	l.transformers.FeedAudio(data)
	l.confirmationLeft--
	if l.confirmationLeft <= 0 || l.consumeAck() {
		l.setState(StateBeforeCommand)
	}
}

func (l *VoiceLoop) stepBeforeCommand(data []byte) {
	l.sttAccumulator.Write(data)
	l.rewindDeque.push(data)

	for _, rc := range l.rewindDeque.drain() {
		l.primary.StreamData(rc)
		if l.fallback != nil {
			l.fallback.StreamData(rc)
		}

		l.timeoutLeft--
		l.timeoutWithSilenceLeft--
		if l.timeoutLeft <= 0 || l.timeoutWithSilenceLeft <= 0 {
			l.setState(StateAfterCommand)
			return
		}

		if l.vadEngine.IsSpeech(rc) {
			l.speechLeft--
			if l.speechLeft <= 0 {
				l.silenceLeft = l.cnt.silence
				l.setState(StateInCommand)
				return
			}
		} else {
			l.speechLeft = l.cnt.speech
		}
	}
}

func (l *VoiceLoop) stepInCommand(data []byte) {
	l.sttAccumulator.Write(data)
	l.primary.StreamData(data)
	if l.fallback != nil {
		l.fallback.StreamData(data)
	}

	l.timeoutLeft--
	if l.timeoutLeft <= 0 {
		l.setState(StateAfterCommand)
		return
	}

	if l.vadEngine.IsSpeech(data) {
		l.silenceLeft = l.cnt.silence
	} else {
		l.silenceLeft--
		if l.silenceLeft <= 0 {
			l.setState(StateAfterCommand)
		}
	}
}

func (l *VoiceLoop) stepRecording(data []byte) {
	if l.takeStopRecordingRequest() {
		l.finishRecording()
		return
	}
	l.hotwords.SetState(hotword.StateRecording)
	l.hotwords.Update(data)
	name, err := l.hotwords.Found()
	if err != nil {
		l.callbacks.fireError(err)
	}
	if name != "" {
		l.finishRecording()
		return
	}

	l.recordingBuf.Write(data)
	if l.vadEngine.IsSpeech(data) {
		l.recordingSilenceLeft = l.cnt.recordingMaxSilence
	} else {
		l.recordingSilenceLeft--
		if l.recordingSilenceLeft <= 0 {
			l.finishRecording()
		}
	}
}

func (l *VoiceLoop) finishRecording() {
	data := make([]byte, l.recordingBuf.Len())
	copy(data, l.recordingBuf.Bytes())
	l.recordingBuf.Reset()
	l.callbacks.fireRecording(data)
	l.callbacks.fireRecordEnd()
	l.hotwords.Reset()
	l.setState(StateDetectWakeword)
}

// detectWW implements the "Wake-word detection (_detect_ww)" routine shared
// by DETECT_WAKEWORD and, implicitly via SetListenNow, the external
// "listen now" command.
func (l *VoiceLoop) detectWW(data []byte) bool {
	l.hotwords.SetState(hotword.StateListen)
	l.hotwordChunks.push(data)
	l.rewindDeque.push(data)
	l.hotwords.Update(data)

	name, err := l.hotwords.Found()
	if err != nil {
		if errors.Is(err, hotword.ErrNoListenEngines) {
			l.callbacks.fireReloadEligible(err)
		}
		return false
	}

	skip, confirmOverride := l.consumeSkipNextWake()
	detected := name != ""
	if !detected && !skip {
		return false
	}

	audioBytes := l.hotwordChunks.bytes()
	l.hotwordChunks.clear()

	meta := map[string]any{}
	var rec *hotword.Record
	if detected {
		rec, _ = l.hotwords.Get(name)
		meta["name"] = name
		if rec != nil {
			meta["engine"] = rec.EngineName
		}
	}
	l.callbacks.fireListenword(audioBytes, meta)
	l.callbacks.fireWake()

	if l.mode == ModeSleeping {
		// Entering CHECK_WAKE_UP: no command recording starts, so the STT
		// stream/timers are left untouched, matching _detect_ww's
		// listen_mode == SLEEPING branch.
		l.setState(StateCheckWakeUp)
	} else {
		l.resetCommandTimers()
		l.sttAccumulator.Reset()
		l.primary.StreamStart(context.Background(), l.cfg.Lang)
		if l.fallback != nil {
			l.fallback.StreamStart(context.Background(), l.cfg.Lang)
		}
		switch {
		case detected && rec != nil && rec.Sound != "":
			l.confirmationLeft = l.resolveConfirmationChunks(rec.Sound)
			l.setState(StateConfirmation)
		case !detected && confirmOverride:
			l.confirmationLeft = l.resolveConfirmationChunks("")
			l.setState(StateConfirmation)
		default:
			l.setState(StateBeforeCommand)
		}
	}

	l.lastWW = l.now()
	l.transformers.FeedHotword(data)
	return true
}

func (l *VoiceLoop) resolveConfirmationChunks(soundName string) int {
	seconds := l.cfg.ConfirmationSeconds
	if soundName != "" && l.soundDuration != nil {
		if s, ok := l.soundDuration(soundName); ok {
			seconds = s
		}
	}
	perChunk := l.format.SecondsPerChunk(l.chunkSize)
	return toChunkCount(seconds, perChunk)
}

func (l *VoiceLoop) detectHot(data []byte) bool {
	l.hotwords.SetState(hotword.StateHotword)
	l.hotwords.Update(data)
	name, err := l.hotwords.Found()
	if err != nil || name == "" {
		return false
	}
	rec, _ := l.hotwords.Get(name)
	busEvent, utterance := "", ""
	if rec != nil {
		busEvent, utterance = rec.BusEvent, rec.Utterance
	}
	l.callbacks.fireHot(name, busEvent, utterance)
	return true
}

func (l *VoiceLoop) resetCommandTimers() {
	l.speechLeft = l.cnt.speech
	l.silenceLeft = l.cnt.silence
	l.timeoutLeft = l.cnt.timeout
	l.timeoutWithSilenceLeft = l.cnt.timeoutWithSilence
}

// finalizeCommand implements AFTER_COMMAND: transform, language validation,
// transcribe (+fallback), filter, and dispatch callbacks.
func (l *VoiceLoop) finalizeCommand(data []byte) {
	utterance := make([]byte, l.sttAccumulator.Len())
	copy(utterance, l.sttAccumulator.Bytes())

	transformed, meta := l.transformers.Transform(utterance)
	if transformed != nil {
		utterance = transformed
	}

	if l.cfg.RemoveSilence {
		if trimmed, ok := l.vadEngine.ExtractSpeech(utterance); ok {
			utterance = trimmed
		}
	}

	lang := l.cfg.Lang
	if hint, ok := meta["stt_lang"].(string); ok && transform.ValidLanguage(hint, l.cfg.Lang, l.cfg.SecondaryLangs) {
		lang = hint
		l.primary.StreamStart(context.Background(), lang)
		l.primary.StreamData(utterance)
		if l.fallback != nil {
			l.fallback.StreamStart(context.Background(), lang)
			l.fallback.StreamData(utterance)
		}
	}

	ts, _ := stt.RunWithFallback(context.Background(), l.primary, l.fallback)
	if l.cfg.FilterHallucinations {
		ts = stt.FilterHallucinations(ts, l.cfg.HallucinationList)
	}
	ts = stt.FilterByConfidence(ts, l.cfg.MinSTTConfidence, l.cfg.MaxTranscripts)

	l.callbacks.fireSTTAudio(utterance, meta)
	l.callbacks.fireRecordEnd()

	mode := l.Mode()
	if len(ts) == 0 {
		if mode != ModeContinuous {
			l.callbacks.fireUnknownSpeech()
		}
	} else {
		l.callbacks.fireText(ts, meta)
	}

	l.sttAccumulator.Reset()
	l.rewindDeque.clear()
	l.hotwordChunks.clear()
	l.vadEngine.Reset()
	l.hotwords.Reset()

	if mode == ModeContinuous || mode == ModeHybrid {
		l.resetCommandTimers()
		l.setState(StateWaitingCmd)
	} else {
		l.setState(StateDetectWakeword)
	}
}

package voiceloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vocodex/listener/pkg/audio"
	"github.com/vocodex/listener/pkg/chunk"
	"github.com/vocodex/listener/pkg/hotword"
	"github.com/vocodex/listener/pkg/stt"
	"github.com/vocodex/listener/pkg/transform"
)

// chunk layout convention used only by this test file: byte[0] marks
// speech (1) vs silence (0); byte[1]/[2]/[3] carry listen/wakeup/stop
// hotword markers. The remainder is zero-padded to testChunkBytes.
const (
	testChunkBytes = 3200 // 0.1s at 16kHz/16-bit/mono
	markerListen   = 0xAA
	markerWakeup   = 0xBB
	markerStop     = 0xCC
)

var testFormat = chunk.Format{SampleRate: 16000, SampleWidth: 2, SampleChannels: 1}

func makeTestChunk(speech bool, marker byte) []byte {
	d := make([]byte, testChunkBytes)
	if speech {
		d[0] = 1
	}
	if marker != 0 {
		d[1] = marker
	}
	return d
}

// fakeSource replays a fixed chunk sequence, then blocks until the context
// is cancelled, signalling drained once so the test can synchronize before
// tearing the loop down.
type fakeSource struct {
	format    chunk.Format
	chunkSize int
	chunks    [][]byte
	idx       int
	drained   chan struct{}
	once      sync.Once
}

func newFakeSource(chunks [][]byte) *fakeSource {
	return &fakeSource{format: testFormat, chunkSize: testChunkBytes, chunks: chunks, drained: make(chan struct{})}
}

func (f *fakeSource) Start(ctx context.Context) error { return nil }
func (f *fakeSource) Stop() error                     { return nil }
func (f *fakeSource) Format() chunk.Format             { return f.format }
func (f *fakeSource) ChunkSize() int                   { return f.chunkSize }

func (f *fakeSource) ReadChunk(ctx context.Context) (*chunk.Chunk, error) {
	if f.idx >= len(f.chunks) {
		f.once.Do(func() { close(f.drained) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d := f.chunks[f.idx]
	f.idx++
	return &chunk.Chunk{Format: f.format, Data: d}, nil
}

// fakeVAD reads the speech marker byte this test file writes into chunk 0.
type fakeVAD struct {
	mu      sync.Mutex
	resets  int
}

func (v *fakeVAD) IsSpeech(data []byte) bool { return len(data) > 0 && data[0] == 1 }
func (v *fakeVAD) ExtractSpeech(pcm []byte) ([]byte, bool) { return pcm, len(pcm) > 0 }
func (v *fakeVAD) Reset() {
	v.mu.Lock()
	v.resets++
	v.mu.Unlock()
}
func (v *fakeVAD) Name() string { return "fake-vad" }

// fakeHotEngine reports detection whenever its marker byte appears anywhere
// in the probed window.
type fakeHotEngine struct{ marker byte }

func (e *fakeHotEngine) FoundWakeWord(data []byte) bool {
	for _, b := range data {
		if b == e.marker {
			return true
		}
	}
	return false
}
func (e *fakeHotEngine) Update(chunk []byte) {}
func (e *fakeHotEngine) Reset()              {}
func (e *fakeHotEngine) Shutdown()           {}

func newTestHotwordSet() *hotword.Set {
	s := hotword.NewSet(testChunkBytes)
	s.Load([]*hotword.Record{
		{Name: "hey_mycroft", Role: hotword.RoleListen, Engine: &fakeHotEngine{marker: markerListen}, Active: true, EngineName: "fake-listen"},
		{Name: "stand_up", Role: hotword.RoleWakeup, Engine: &fakeHotEngine{marker: markerWakeup}, Active: true},
		{Name: "end_recording", Role: hotword.RoleStop, Engine: &fakeHotEngine{marker: markerStop}, Active: true},
	})
	return s
}

// fakeBackend is a stt.BatchTranscriber returning a fixed string.
type fakeBackend struct{ text string }

func (b *fakeBackend) Transcribe(ctx context.Context, pcm []byte, lang string) (string, error) {
	return b.text, nil
}
func (b *fakeBackend) Name() string { return "fake-stt" }

// fakeClock is an injectable, test-advanced Now() for CHECK_WAKE_UP's
// wall-clock timeout.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder captures callback firings in order for assertion.
type recorder struct {
	mu     sync.Mutex
	events []string
	texts  [][]stt.Transcript
}

func (r *recorder) log(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}
func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
func (r *recorder) count(e string) int {
	n := 0
	for _, x := range r.snapshot() {
		if x == e {
			n++
		}
	}
	return n
}

func runLoopUntilDrained(t *testing.T, l *VoiceLoop, src *fakeSource, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-src.drained:
	case err := <-done:
		t.Fatalf("loop returned early: %v", err)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for source to drain")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for loop to stop")
	}
}

func TestWakeAndCommand_WakewordMode(t *testing.T) {
	var chunks [][]byte
	for i := 0; i < 100; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}
	chunks = append(chunks, makeTestChunk(false, markerListen))
	for i := 0; i < 4; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}
	for i := 0; i < 50; i++ {
		chunks = append(chunks, makeTestChunk(true, 0))
	}
	for i := 0; i < 20; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}

	src := newFakeSource(chunks)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.NumSTTRewindChunks = 2

	backend := stt.NewStreamAdapter(&fakeBackend{text: "hello world"})
	l := New(Params{
		Source:       src,
		VAD:          &fakeVAD{},
		Hotwords:     newTestHotwordSet(),
		Transformers: transform.NewChain(nil, nil),
		Primary:      backend,
		Config:       cfg,
		Callbacks: Callbacks{
			Listenword: func(audio []byte, meta map[string]any) { rec.log("listenword") },
			Wake:       func() { rec.log("wake") },
			STTAudio:   func(audio []byte, meta map[string]any) { rec.log("stt_audio") },
			RecordEnd:  func() { rec.log("record_end") },
			Text: func(ts []stt.Transcript, meta map[string]any) {
				rec.log("text")
				rec.mu.Lock()
				rec.texts = append(rec.texts, ts)
				rec.mu.Unlock()
			},
			UnknownSpeech: func() { rec.log("unknown_speech") },
		},
	})

	runLoopUntilDrained(t, l, src, 5*time.Second)

	got := rec.snapshot()
	want := []string{"listenword", "wake", "stt_audio", "record_end", "text"}
	if len(got) != len(want) {
		t.Fatalf("event order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event order = %v, want %v", got, want)
		}
	}
	if rec.texts[0][0].Text != "hello world" {
		t.Errorf("transcript text = %q, want %q", rec.texts[0][0].Text, "hello world")
	}
	if l.State() != StateDetectWakeword {
		t.Errorf("final state = %v, want detect_wakeword", l.State())
	}
}

func TestTimeoutWithoutSpeech(t *testing.T) {
	var chunks [][]byte
	chunks = append(chunks, makeTestChunk(false, markerListen))
	for i := 0; i < 20; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}

	src := newFakeSource(chunks)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.TimeoutSecondsWithSilence = 1 // 10 chunks at 0.1s/chunk

	backend := stt.NewStreamAdapter(&fakeBackend{text: ""})
	l := New(Params{
		Source:       src,
		VAD:          &fakeVAD{},
		Hotwords:     newTestHotwordSet(),
		Transformers: transform.NewChain(nil, nil),
		Primary:      backend,
		Config:       cfg,
		Callbacks: Callbacks{
			UnknownSpeech: func() { rec.log("unknown_speech") },
			Text:          func(ts []stt.Transcript, meta map[string]any) { rec.log("text") },
		},
	})

	runLoopUntilDrained(t, l, src, 5*time.Second)

	if rec.count("unknown_speech") != 1 {
		t.Errorf("unknown_speech fired %d times, want 1", rec.count("unknown_speech"))
	}
	if rec.count("text") != 0 {
		t.Errorf("text fired %d times, want 0", rec.count("text"))
	}
	if l.State() != StateDetectWakeword {
		t.Errorf("final state = %v, want detect_wakeword", l.State())
	}
}

func TestContinuousMode(t *testing.T) {
	var chunks [][]byte
	for i := 0; i < 3; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}
	for i := 0; i < 10; i++ {
		chunks = append(chunks, makeTestChunk(true, 0))
	}
	for i := 0; i < 10; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}

	src := newFakeSource(chunks)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.SpeechSeconds = 0.3 // 3 chunks at 0.1s/chunk

	backend := stt.NewStreamAdapter(&fakeBackend{text: ""})
	l := New(Params{
		Source:       src,
		VAD:          &fakeVAD{},
		Hotwords:     newTestHotwordSet(),
		Transformers: transform.NewChain(nil, nil),
		Primary:      backend,
		Config:       cfg,
		Callbacks: Callbacks{
			UnknownSpeech: func() { rec.log("unknown_speech") },
		},
	})
	l.RequestMode(ModeContinuous)

	runLoopUntilDrained(t, l, src, 5*time.Second)

	if rec.count("unknown_speech") != 0 {
		t.Errorf("unknown_speech fired %d times in CONTINUOUS, want 0", rec.count("unknown_speech"))
	}
}

// TestSleepWake drives CHECK_WAKE_UP's wall-clock expiry deterministically
// by running the loop in short sequential phases and advancing an injected
// clock between them, rather than racing a real timer against an
// unpaced synthetic source.
func TestSleepWake(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	cfg := DefaultConfig()

	backend := stt.NewStreamAdapter(&fakeBackend{text: ""})
	l := New(Params{
		Source:       newFakeSource(nil),
		VAD:          &fakeVAD{},
		Hotwords:     newTestHotwordSet(),
		Transformers: transform.NewChain(nil, nil),
		Primary:      backend,
		Config:       cfg,
		Now:          clock.now,
		Callbacks: Callbacks{
			Wakeup:     func() { rec.log("wakeup") },
			Listenword: func(audio []byte, meta map[string]any) { rec.log("listenword") },
		},
	})
	l.RequestState(StateSleeping)

	phase := func(chunks [][]byte) {
		src := newFakeSource(chunks)
		l.source = src
		runLoopUntilDrained(t, l, src, 5*time.Second)
	}

	// 5 silent chunks with no hot-word: stays SLEEPING, no callbacks.
	phase([][]byte{
		makeTestChunk(false, 0), makeTestChunk(false, 0), makeTestChunk(false, 0),
		makeTestChunk(false, 0), makeTestChunk(false, 0),
	})
	if l.State() != StateSleeping {
		t.Fatalf("state after silent chunks = %v, want sleeping", l.State())
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("unexpected callbacks before wake-word: %v", rec.snapshot())
	}

	// listen-word hit -> CHECK_WAKE_UP, via the same detectWW path
	// DETECT_WAKEWORD uses, so Listenword still fires even though
	// entering CHECK_WAKE_UP skips the STT stream-start/timer-reset.
	phase([][]byte{makeTestChunk(false, markerListen)})
	if l.State() != StateCheckWakeUp {
		t.Fatalf("state after listen-word = %v, want check_wake_up", l.State())
	}
	if rec.count("listenword") != 1 {
		t.Fatalf("listenword fired %d times on sleeping-state wake hit, want 1", rec.count("listenword"))
	}

	// expire the 10s window without a wake-up-word hit -> falls back to
	// SLEEPING, no Wakeup callback.
	clock.advance(11 * time.Second)
	phase([][]byte{makeTestChunk(false, 0)})
	if l.State() != StateSleeping {
		t.Fatalf("state after expiry = %v, want sleeping", l.State())
	}
	if rec.count("wakeup") != 0 {
		t.Fatalf("wakeup fired %d times before expiry check, want 0", rec.count("wakeup"))
	}

	// re-trigger, then hit the wake-up word within the window.
	phase([][]byte{makeTestChunk(false, markerListen)})
	phase([][]byte{
		makeTestChunk(false, 0), makeTestChunk(false, 0), makeTestChunk(false, 0),
		makeTestChunk(false, markerWakeup),
	})

	if rec.count("wakeup") != 1 {
		t.Errorf("wakeup fired %d times, want 1", rec.count("wakeup"))
	}
	if l.State() != StateDetectWakeword {
		t.Errorf("final state = %v, want detect_wakeword", l.State())
	}
}

func TestFreeRecordingWithStopWord(t *testing.T) {
	var chunks [][]byte
	for i := 0; i < 30; i++ {
		chunks = append(chunks, makeTestChunk(true, 0))
	}
	chunks = append(chunks, makeTestChunk(false, markerStop))

	src := newFakeSource(chunks)
	rec := &recorder{}
	var recordedBytes int

	backend := stt.NewStreamAdapter(&fakeBackend{text: ""})
	l := New(Params{
		Source:       src,
		VAD:          &fakeVAD{},
		Hotwords:     newTestHotwordSet(),
		Transformers: transform.NewChain(nil, nil),
		Primary:      backend,
		Config:       DefaultConfig(),
		Callbacks: Callbacks{
			Recording: func(data []byte) {
				rec.log("recording")
				recordedBytes = len(data)
			},
			RecordEnd: func() { rec.log("record_end") },
		},
	})
	l.RequestState(StateRecording)

	runLoopUntilDrained(t, l, src, 5*time.Second)

	if rec.count("recording") != 1 {
		t.Fatalf("recording fired %d times, want 1", rec.count("recording"))
	}
	if recordedBytes != 30*testChunkBytes {
		t.Errorf("recorded %d bytes, want %d", recordedBytes, 30*testChunkBytes)
	}
	if l.State() != StateDetectWakeword {
		t.Errorf("final state = %v, want detect_wakeword", l.State())
	}
}

func TestHallucinationFilter(t *testing.T) {
	var chunks [][]byte
	chunks = append(chunks, makeTestChunk(false, markerListen))
	for i := 0; i < 5; i++ {
		chunks = append(chunks, makeTestChunk(true, 0))
	}
	for i := 0; i < 10; i++ {
		chunks = append(chunks, makeTestChunk(false, 0))
	}

	src := newFakeSource(chunks)
	rec := &recorder{}
	cfg := DefaultConfig()

	backend := stt.NewStreamAdapter(&fakeBackend{text: "Thanks for watching!"})
	l := New(Params{
		Source:       src,
		VAD:          &fakeVAD{},
		Hotwords:     newTestHotwordSet(),
		Transformers: transform.NewChain(nil, nil),
		Primary:      backend,
		Config:       cfg,
		Callbacks: Callbacks{
			Text:          func(ts []stt.Transcript, meta map[string]any) { rec.log("text") },
			UnknownSpeech: func() { rec.log("unknown_speech") },
		},
	})

	runLoopUntilDrained(t, l, src, 5*time.Second)

	if rec.count("text") != 0 {
		t.Errorf("text fired %d times, want 0 (hallucination filtered)", rec.count("text"))
	}
	if rec.count("unknown_speech") != 1 {
		t.Errorf("unknown_speech fired %d times, want 1", rec.count("unknown_speech"))
	}
}

var _ audio.Source = (*fakeSource)(nil)

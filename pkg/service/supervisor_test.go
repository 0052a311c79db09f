package service

import (
	"context"
	"log"
	"sync"

	"github.com/vocodex/listener/pkg/voiceloop"
)

// fakeLoop is a struct-literal test double for Loop, recording every call
// it receives instead of driving a real audio/hotword/STT stack.
type fakeLoop struct {
	mu sync.Mutex

	muted       bool
	mode        voiceloop.Mode
	state       voiceloop.State
	listenNow   []bool
	acks        int
	states      []voiceloop.State
	modes       []voiceloop.Mode
	stopReqs    int
	skillNotify int

	runErr  error
	ranOnce chan struct{}
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{ranOnce: make(chan struct{}, 1)}
}

func (f *fakeLoop) Run(ctx context.Context) error {
	select {
	case f.ranOnce <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return f.runErr
}

func (f *fakeLoop) State() voiceloop.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLoop) Mode() voiceloop.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeLoop) SetMuted(v bool) {
	f.mu.Lock()
	f.muted = v
	f.mu.Unlock()
}

func (f *fakeLoop) IsMuted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}

func (f *fakeLoop) SetSkipNextWake(bool) {}

func (f *fakeLoop) SetListenNow(playConfirmation bool) {
	f.mu.Lock()
	f.listenNow = append(f.listenNow, playConfirmation)
	f.mu.Unlock()
}

func (f *fakeLoop) Acknowledge() {
	f.mu.Lock()
	f.acks++
	f.mu.Unlock()
}

func (f *fakeLoop) RequestState(s voiceloop.State) {
	f.mu.Lock()
	f.state = s
	f.states = append(f.states, s)
	f.mu.Unlock()
}

func (f *fakeLoop) RequestMode(m voiceloop.Mode) {
	f.mu.Lock()
	f.mode = m
	f.modes = append(f.modes, m)
	f.mu.Unlock()
}

func (f *fakeLoop) RequestStopRecording() {
	f.mu.Lock()
	f.stopReqs++
	f.mu.Unlock()
}

func (f *fakeLoop) NotifySkillActivated() {
	f.mu.Lock()
	f.skillNotify++
	f.mu.Unlock()
}

func testLogger() *log.Logger {
	return log.New(discard{}, "", 0)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

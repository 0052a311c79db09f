package service

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/vocodex/listener/pkg/audio"
	"github.com/vocodex/listener/pkg/bus"
	"github.com/vocodex/listener/pkg/config"
	"github.com/vocodex/listener/pkg/stt"
)

type fakeStreamer struct {
	started     []string
	fed         [][]byte
	transcripts []stt.Transcript
	err         error
}

func (f *fakeStreamer) Name() string { return "fake" }

func (f *fakeStreamer) StreamStart(ctx context.Context, lang string) error {
	f.started = append(f.started, lang)
	return nil
}

func (f *fakeStreamer) StreamData(chunk []byte) error {
	f.fed = append(f.fed, chunk)
	return nil
}

func (f *fakeStreamer) Transcribe(ctx context.Context) ([]stt.Transcript, error) {
	return f.transcripts, f.err
}

func b64WAV(pcm []byte) string {
	wav := audio.NewWavBuffer(pcm, 16000)
	return base64.StdEncoding.EncodeToString(wav)
}

func TestHandleB64TranscribeReturnsTranscriptions(t *testing.T) {
	backend := &fakeStreamer{transcripts: []stt.Transcript{{Text: "turn on the lights", Confidence: 0.95}}}
	b := bus.NewLocal(testLogger())
	rec := &emitRecorder{}
	subscribeAll(b, rec, "recognizer_loop:b64_transcribe.response")

	s := New(Params{Bus: b, Config: config.DefaultServiceConfig(), Loop: newFakeLoop(), STT: backend, Logger: testLogger()})

	err := s.handleB64Transcribe(bus.Message{Data: map[string]any{
		"audio": b64WAV(make([]byte, 1600)),
		"lang":  "en-us",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(backend.started) != 1 || backend.started[0] != "en-us" {
		t.Fatalf("expected stream start with lang en-us, got %v", backend.started)
	}

	msgs := rec.types()
	if len(msgs) != 1 || msgs[0] != "recognizer_loop:b64_transcribe.response" {
		t.Fatalf("expected one response emit, got %v", msgs)
	}
}

func TestHandleB64AudioFiltersLowConfidence(t *testing.T) {
	backend := &fakeStreamer{transcripts: []stt.Transcript{{Text: "noise", Confidence: 0.1}}}
	b := bus.NewLocal(testLogger())
	rec := &emitRecorder{}
	subscribeAll(b, rec, "recognizer_loop:utterance", "recognizer_loop:speech.recognition.unknown")

	cfg := config.DefaultServiceConfig()
	cfg.Listener.MinSTTConfidence = 0.5
	s := New(Params{Bus: b, Config: cfg, Loop: newFakeLoop(), STT: backend, Logger: testLogger()})

	err := s.handleB64Audio(bus.Message{Data: map[string]any{"audio": b64WAV(make([]byte, 1600))}})
	if err != nil {
		t.Fatal(err)
	}

	types := rec.types()
	if len(types) != 1 || types[0] != "recognizer_loop:speech.recognition.unknown" {
		t.Fatalf("expected low-confidence result to fall back to unknown-speech, got %v", types)
	}
}

func TestHandleB64TranscribeWithoutBackend(t *testing.T) {
	b := bus.NewLocal(testLogger())
	s := New(Params{Bus: b, Config: config.DefaultServiceConfig(), Loop: newFakeLoop(), Logger: testLogger()})

	err := s.handleB64Transcribe(bus.Message{Data: map[string]any{"audio": b64WAV(make([]byte, 100))}})
	if err == nil {
		t.Fatal("expected an error when no STT backend is configured")
	}
}

package stt

import (
	"bytes"
	"context"
	"sync"
)

// BatchTranscriber is a provider that only transcribes a complete buffer in
// one call — the shape every HTTP-backed provider in this package has.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, pcm []byte, lang string) (string, error)
	Name() string
}

// StreamAdapter buffers stream_data chunks and defers to a BatchTranscriber
// at Transcribe, grounded on
// original_source/ovos_dinkum_listener/plugins.py's FakeStreamingSTT /
// FakeStreamThread: "plugins expect AudioData objects" built from the
// accumulated buffer, cleared after each finalize().
type StreamAdapter struct {
	backend BatchTranscriber

	mu   sync.Mutex
	lang string
	buf  bytes.Buffer
}

// NewStreamAdapter wraps backend in the stream_start/stream_data/transcribe
// lifecycle.
func NewStreamAdapter(backend BatchTranscriber) *StreamAdapter {
	return &StreamAdapter{backend: backend}
}

func (a *StreamAdapter) Name() string { return a.backend.Name() }

func (a *StreamAdapter) StreamStart(ctx context.Context, lang string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lang = lang
	a.buf.Reset()
	return nil
}

func (a *StreamAdapter) StreamData(chunk []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Write(chunk)
	return nil
}

func (a *StreamAdapter) Transcribe(ctx context.Context) ([]Transcript, error) {
	a.mu.Lock()
	pcm := make([]byte, a.buf.Len())
	copy(pcm, a.buf.Bytes())
	lang := a.lang
	a.buf.Reset()
	a.mu.Unlock()

	if len(pcm) == 0 {
		return nil, nil
	}

	text, err := a.backend.Transcribe(ctx, pcm, lang)
	if err != nil {
		// STT errors are treated as empty transcription per §4.7/§7; the
		// caller falls back if a fallback engine is configured.
		return nil, nil
	}
	if text == "" {
		return nil, nil
	}
	return []Transcript{{Text: text, Confidence: 1.0}}, nil
}

// RunWithFallback drives primary and, only if it returns an empty list,
// falls back to fallback (which may be nil). Both are assumed to already
// have had StreamStart/StreamData driven identically by the caller.
func RunWithFallback(ctx context.Context, primary, fallback Streamer) ([]Transcript, error) {
	ts, err := primary.Transcribe(ctx)
	if err != nil {
		return nil, err
	}
	if len(ts) > 0 || fallback == nil {
		SortDescending(ts)
		return ts, nil
	}
	ts, err = fallback.Transcribe(ctx)
	if err != nil {
		return nil, nil
	}
	SortDescending(ts)
	return ts, nil
}

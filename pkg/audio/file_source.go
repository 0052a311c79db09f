package audio

import (
	"context"

	"github.com/vocodex/listener/pkg/chunk"
)

// FileSource replays a fixed sequence of chunks, built either from raw PCM
// (via NewFileSource) or a decoded WAV fixture (via NewFileSourceFromWav).
// It is the deterministic AudioSource double used by VoiceLoop tests, so
// scenarios can be driven chunk-by-chunk without real audio hardware.
type FileSource struct {
	format    chunk.Format
	chunkSize int
	chunks    [][]byte
	pos       int
	stopped   bool
}

// NewFileSource slices pcm into chunkSize-byte blocks (the last is zero
// padded if short) under format.
func NewFileSource(format chunk.Format, chunkSize int, pcm []byte) *FileSource {
	var chunks [][]byte
	for i := 0; i < len(pcm); i += chunkSize {
		end := i + chunkSize
		block := make([]byte, chunkSize)
		if end > len(pcm) {
			copy(block, pcm[i:])
		} else {
			copy(block, pcm[i:end])
		}
		chunks = append(chunks, block)
	}
	return &FileSource{format: format, chunkSize: chunkSize, chunks: chunks}
}

// NewFileSourceFromWav decodes a WAV buffer and replays its PCM payload.
func NewFileSourceFromWav(wav []byte, chunkSize int) (*FileSource, error) {
	decoded, err := Decode(wav)
	if err != nil {
		return nil, err
	}
	format := chunk.Format{
		SampleRate:     decoded.SampleRate,
		SampleWidth:    decoded.BitDepth / 8,
		SampleChannels: decoded.Channels,
	}
	return NewFileSource(format, chunkSize, decoded.PCM), nil
}

func (f *FileSource) Format() chunk.Format { return f.format }
func (f *FileSource) ChunkSize() int       { return f.chunkSize }

func (f *FileSource) Start(ctx context.Context) error { f.stopped = false; return nil }
func (f *FileSource) Stop() error                     { f.stopped = true; return nil }

// ReadChunk returns the next fixture chunk, or (nil, nil) once exhausted —
// the same "transient unavailability" signal a real source gives on
// timeout, so loop tests naturally idle rather than erroring at EOF.
func (f *FileSource) ReadChunk(ctx context.Context) (*chunk.Chunk, error) {
	if f.stopped || f.pos >= len(f.chunks) {
		return nil, nil
	}
	data := f.chunks[f.pos]
	f.pos++
	return &chunk.Chunk{Format: f.format, Data: data}, nil
}

// Remaining reports how many fixture chunks are left to replay.
func (f *FileSource) Remaining() int { return len(f.chunks) - f.pos }

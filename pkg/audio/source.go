package audio

import (
	"context"
	"time"

	"github.com/vocodex/listener/pkg/chunk"
)

// Source produces a strictly ordered lazy sequence of fixed-size PCM chunks.
// ReadChunk blocks until a full chunk is available or the read times out;
// a nil chunk with a nil error signals transient unavailability, not failure.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	ReadChunk(ctx context.Context) (*chunk.Chunk, error)
	Format() chunk.Format
	ChunkSize() int
}

// Muted wraps a Source so every chunk it yields is replaced with silence of
// the same size, without stopping the underlying capture device. VoiceLoop
// does not use this wrapper: its own SetMuted substitutes a zero-filled
// chunk after each read.
type Muted struct {
	Source
	muted bool
}

// NewMuted wraps src; Mute/Unmute toggle substitution.
func NewMuted(src Source) *Muted { return &Muted{Source: src} }

func (m *Muted) Mute(v bool) { m.muted = v }
func (m *Muted) IsMuted() bool { return m.muted }

func (m *Muted) ReadChunk(ctx context.Context) (*chunk.Chunk, error) {
	c, err := m.Source.ReadChunk(ctx)
	if err != nil || c == nil {
		return c, err
	}
	if m.muted {
		silent := chunk.Silence(c.Format, len(c.Data))
		return &silent, nil
	}
	return c, nil
}

// DefaultReadTimeout bounds how long ReadChunk waits for a frame before
// returning a transient nil, matching the spec's "read_chunk blocks ... or
// times out" contract.
const DefaultReadTimeout = 2 * time.Second

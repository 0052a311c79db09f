package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/vocodex/listener/pkg/chunk"
)

// ErrSourceStopped is returned by ReadChunk once the source has been Stopped.
var ErrSourceStopped = errors.New("audio: source stopped")

// MicSource captures from the default system microphone via malgo, the
// teacher's own capture dependency (generalized here from the teacher's
// duplex capture+playback device into a capture-only source, since this
// module never plays audio back).
type MicSource struct {
	format    chunk.Format
	chunkSize int
	timeout   time.Duration

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	chunks  chan []byte
	running bool
}

// NewMicSource builds a capture-only source at the given format, buffering
// chunkSize-byte frames between the malgo callback thread and ReadChunk.
func NewMicSource(format chunk.Format, chunkSize int) *MicSource {
	return &MicSource{
		format:    format,
		chunkSize: chunkSize,
		timeout:   DefaultReadTimeout,
		chunks:    make(chan []byte, 32),
	}
}

func (m *MicSource) Format() chunk.Format { return m.format }
func (m *MicSource) ChunkSize() int       { return m.chunkSize }

// SetReadTimeout overrides DefaultReadTimeout.
func (m *MicSource) SetReadTimeout(d time.Duration) { m.timeout = d }

func (m *MicSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio: malgo init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.format.SampleChannels)
	deviceConfig.SampleRate = uint32(m.format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	// accumulate raw frames into fixed chunkSize blocks before handing them
	// to the reader; the callback thread never blocks on the channel send.
	var pending []byte
	onSamples := func(_, pInput []byte, _ uint32) {
		if len(pInput) == 0 {
			return
		}
		pending = append(pending, pInput...)
		for len(pending) >= m.chunkSize {
			block := make([]byte, m.chunkSize)
			copy(block, pending[:m.chunkSize])
			pending = pending[m.chunkSize:]
			select {
			case m.chunks <- block:
			default:
				// drop the oldest buffered chunk rather than block the
				// capture callback, which must never stall.
				select {
				case <-m.chunks:
				default:
				}
				m.chunks <- block
			}
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		mctx.Uninit()
		return fmt.Errorf("audio: malgo init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return fmt.Errorf("audio: malgo device start: %w", err)
	}

	m.mctx = mctx
	m.device = device
	m.running = true
	return nil
}

func (m *MicSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	if m.device != nil {
		m.device.Uninit()
	}
	if m.mctx != nil {
		m.mctx.Uninit()
	}
	return nil
}

func (m *MicSource) ReadChunk(ctx context.Context) (*chunk.Chunk, error) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ErrSourceStopped
	case data, ok := <-m.chunks:
		if !ok {
			return nil, ErrSourceStopped
		}
		return &chunk.Chunk{Format: m.format, Data: data}, nil
	case <-timer.C:
		return nil, nil // transient unavailability, not fatal
	}
}

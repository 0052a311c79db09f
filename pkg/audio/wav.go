package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrNotWav is returned by Decode when the input lacks a RIFF/WAVE header.
var ErrNotWav = errors.New("audio: not a WAV file")

// NewWavBuffer wraps mono 16-bit PCM at sampleRate in a minimal WAV header,
// matching the format persisted artifacts are specified to use.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	return NewWavBufferFull(pcm, sampleRate, 1, 16)
}

// NewWavBufferFull wraps PCM with an explicit channel count and bits per
// sample, for save paths that don't use the mono/16-bit default.
func NewWavBufferFull(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	buf := new(bytes.Buffer)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodedWav is the parsed result of Decode.
type DecodedWav struct {
	SampleRate int
	Channels   int
	BitDepth   int
	PCM        []byte
}

// Decode parses a canonical (non-chunked-extension) WAV buffer. It exists so
// FileSource can replay recorded fixtures chunk by chunk in tests.
func Decode(wav []byte) (*DecodedWav, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, ErrNotWav
	}
	if string(wav[12:16]) != "fmt " {
		return nil, ErrNotWav
	}
	channels := int(binary.LittleEndian.Uint16(wav[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(wav[24:28]))
	bitDepth := int(binary.LittleEndian.Uint16(wav[34:36]))
	if string(wav[36:40]) != "data" {
		return nil, ErrNotWav
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if 44+int(dataLen) > len(wav) {
		return nil, ErrNotWav
	}
	return &DecodedWav{
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
		PCM:        wav[44 : 44+int(dataLen)],
	}, nil
}

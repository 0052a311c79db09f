package service

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vocodex/listener/pkg/audio"
	"github.com/vocodex/listener/pkg/chunk"
	"github.com/vocodex/listener/pkg/stt"
)

// wavPaths computes the wav/meta file paths and the file:// URI that will
// identify them, without touching disk. Splitting this out of saveWAV lets
// an async caller learn the eventual filename immediately while the bytes
// themselves are written by the background worker.
func wavPaths(dir, filename string) (wavPath, metaPath, uri string) {
	wavPath = filepath.Join(dir, filename+".wav")
	metaPath = filepath.Join(dir, filename+".json")
	abs, err := filepath.Abs(wavPath)
	if err != nil {
		abs = wavPath
	}
	return wavPath, metaPath, "file://" + abs
}

// writeWAVFiles does the actual MkdirAll/WriteFile work for wavPaths' two
// files. This is the part of saveWAV that must never run on VoiceLoop's
// dispatch goroutine.
func writeWAVFiles(wavPath, metaPath string, pcm []byte, format chunk.Format, meta map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(wavPath), 0o755); err != nil {
		return fmt.Errorf("service: create %s: %w", filepath.Dir(wavPath), err)
	}

	bitDepth := format.SampleWidth * 8
	wavBytes := audio.NewWavBufferFull(pcm, format.SampleRate, format.SampleChannels, bitDepth)
	if err := os.WriteFile(wavPath, wavBytes, 0o644); err != nil {
		return fmt.Errorf("service: write %s: %w", wavPath, err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("service: marshal meta for %s: %w", filepath.Base(wavPath), err)
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		return fmt.Errorf("service: write %s: %w", metaPath, err)
	}
	return nil
}

// saveWAV writes dir/filename.wav (PCM wrapped as a WAV) and
// dir/filename.json (meta, for whatever fields the caller wants alongside
// the audio), and returns a file:// URI to the WAV, matching
// service.py's _save_ww/_save_stt/_save_recording return convention. Runs
// synchronously; callers on VoiceLoop's dispatch goroutine should use
// saveWAVAsync instead.
func (s *Supervisor) saveWAV(dir, filename string, pcm []byte, format chunk.Format, meta map[string]any) (string, error) {
	wavPath, metaPath, uri := wavPaths(dir, filename)
	if err := writeWAVFiles(wavPath, metaPath, pcm, format, meta); err != nil {
		return "", err
	}
	return uri, nil
}

// saveWAVAsync mirrors saveWAV's filename/URI convention but hands the
// MkdirAll/WriteFile work to the background worker (see worker.go) and
// returns the URI immediately, so a callback invoked on VoiceLoop's
// dispatch goroutine never blocks on disk I/O.
func (s *Supervisor) saveWAVAsync(dir, filename string, pcm []byte, format chunk.Format, meta map[string]any) string {
	wavPath, metaPath, uri := wavPaths(dir, filename)
	s.submit(func() {
		if err := writeWAVFiles(wavPath, metaPath, pcm, format, meta); err != nil {
			s.logger.Printf("service: %v", err)
		}
	})
	return uri
}

// wakewordMeta builds the Selene-compatible metadata shape
// _compile_ww_context produces and a filename from its values, taken in
// sorted key order and joined by "_" (the corpus's own TODO calls this convention out as
// legacy; it's kept here for backward compatible upload payloads, not
// reinvented).
func wakewordMeta(nowMillis int64, sessionID, keyPhrase, module string) (string, map[string]any) {
	meta := map[string]string{
		"name":      keyPhrase,
		"engine":    md5Hex(module),
		"time":      fmt.Sprintf("%d", nowMillis),
		"sessionId": sessionID,
		"accountId": "Anon",
		"model":     "0",
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	filename := ""
	for i, k := range keys {
		if i > 0 {
			filename += "_"
		}
		filename += meta[k]
	}

	metaAny := make(map[string]any, len(meta))
	for k, v := range meta {
		metaAny[k] = v
	}
	return filename, metaAny
}

// saveWakeword persists a detected wake-word's lead-in audio synchronously.
func (s *Supervisor) saveWakeword(dir string, pcm []byte, format chunk.Format, keyPhrase, module string) (string, map[string]any, error) {
	filename, meta := wakewordMeta(s.clock().UnixMilli(), s.sessionID, keyPhrase, module)
	uri, err := s.saveWAV(dir, filename, pcm, format, meta)
	return uri, meta, err
}

// saveWakewordAsync is saveWakeword's non-blocking counterpart, used by the
// Listenword callback.
func (s *Supervisor) saveWakewordAsync(dir string, pcm []byte, format chunk.Format, keyPhrase, module string) string {
	filename, meta := wakewordMeta(s.clock().UnixMilli(), s.sessionID, keyPhrase, module)
	return s.saveWAVAsync(dir, filename, pcm, format, meta)
}

// utteranceFilename renders the configured utterance_filename template
// (default "{md5}-{uuid4}"), where {md5} resolves to the leading
// transcript's text hash, matching _save_stt's transcription_md5 builder.
func (s *Supervisor) utteranceFilename(transcripts []stt.Transcript) (string, error) {
	tmpl := s.cfg.Listener.UtteranceFilename
	if tmpl == "" {
		tmpl = "{md5}-{uuid4}"
	}
	text := "null"
	if len(transcripts) > 0 {
		text = transcripts[0].Text
	}
	return renderTemplate(s.clock, tmpl, map[string]func() string{
		"md5": func() string { return md5Hex(text) },
	})
}

// saveUtterance persists a completed command's audio synchronously.
func (s *Supervisor) saveUtterance(dir string, pcm []byte, format chunk.Format, transcripts []stt.Transcript, meta map[string]any) (string, error) {
	filename, err := s.utteranceFilename(transcripts)
	if err != nil {
		return "", err
	}
	return s.saveWAV(dir, filename, pcm, format, meta)
}

// saveUtteranceAsync is saveUtterance's non-blocking counterpart, used by
// the STTAudio callback. The filename template only needs the transcript
// text and the clock, so it can still be rendered synchronously; only the
// bytes hitting disk move to the background worker.
func (s *Supervisor) saveUtteranceAsync(dir string, pcm []byte, format chunk.Format, transcripts []stt.Transcript, meta map[string]any) string {
	filename, err := s.utteranceFilename(transcripts)
	if err != nil {
		s.logger.Printf("service: render utterance filename: %v", err)
		return ""
	}
	return s.saveWAVAsync(dir, filename, pcm, format, meta)
}

// saveRecording persists a free-recording session under its requested name
// (set via the "recording_name" field of a state.set{state:"recording"}
// command), falling back to a unix timestamp when none was given.
func (s *Supervisor) saveRecording(dir string, pcm []byte, format chunk.Format, name string, meta map[string]any) (string, error) {
	return s.saveWAV(dir, s.recordingFilename(name), pcm, format, meta)
}

// saveRecordingAsync is saveRecording's non-blocking counterpart, used by
// the Recording callback.
func (s *Supervisor) saveRecordingAsync(dir string, pcm []byte, format chunk.Format, name string, meta map[string]any) string {
	return s.saveWAVAsync(dir, s.recordingFilename(name), pcm, format, meta)
}

func (s *Supervisor) recordingFilename(name string) string {
	if name == "" {
		return fmt.Sprintf("%d", s.clock().Unix())
	}
	return name
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

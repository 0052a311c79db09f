package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/vocodex/listener/pkg/audio"
	"github.com/vocodex/listener/pkg/bus"
	"github.com/vocodex/listener/pkg/stt"
)

// handleB64Transcribe implements the one-shot "transcribe this base64 WAV
// and tell me the result" RPC, grounded on _handle_b64_transcribe.
func (s *Supervisor) handleB64Transcribe(msg bus.Message) error {
	if s.sttRPC == nil {
		return fmt.Errorf("service: b64_transcribe: no STT backend configured")
	}
	lang, _ := msg.Data["lang"].(string)
	if lang == "" {
		lang = s.cfg.Lang
	}

	pcm, err := decodeB64WAV(msg.Data)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.sttRPC.StreamStart(ctx, lang); err != nil {
		return fmt.Errorf("service: b64_transcribe: stream start: %w", err)
	}
	if err := s.sttRPC.StreamData(pcm); err != nil {
		return fmt.Errorf("service: b64_transcribe: stream data: %w", err)
	}
	transcripts, err := s.sttRPC.Transcribe(ctx)
	if err != nil {
		return fmt.Errorf("service: b64_transcribe: %w", err)
	}

	s.emit("recognizer_loop:b64_transcribe.response", map[string]any{
		"transcriptions": transcriptPairs(transcripts),
		"lang":           lang,
	})
	return nil
}

// handleB64Audio implements the "transcribe this base64 WAV and inject the
// result as a normal utterance" RPC, grounded on _handle_b64_audio.
func (s *Supervisor) handleB64Audio(msg bus.Message) error {
	if s.sttRPC == nil {
		return fmt.Errorf("service: b64_audio: no STT backend configured")
	}
	lang, _ := msg.Data["lang"].(string)
	if lang == "" {
		lang = s.cfg.Lang
	}

	pcm, err := decodeB64WAV(msg.Data)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.sttRPC.StreamStart(ctx, lang); err != nil {
		return fmt.Errorf("service: b64_audio: stream start: %w", err)
	}
	if err := s.sttRPC.StreamData(pcm); err != nil {
		return fmt.Errorf("service: b64_audio: stream data: %w", err)
	}
	transcripts, err := s.sttRPC.Transcribe(ctx)
	if err != nil {
		return fmt.Errorf("service: b64_audio: %w", err)
	}

	// Unlike AFTER_COMMAND's stt.FilterByConfidence, this RPC's threshold
	// filter has no "keep one anyway" carve-out: _handle_b64_audio drops
	// every low-confidence candidate and falls back to unknown-speech.
	var filtered []stt.Transcript
	for _, tr := range transcripts {
		if tr.Confidence >= s.cfg.Listener.MinSTTConfidence {
			filtered = append(filtered, tr)
		}
	}
	if len(filtered) == 0 {
		s.emit("recognizer_loop:speech.recognition.unknown", nil)
		return nil
	}

	utterances := make([]string, 0, len(filtered))
	for _, t := range filtered {
		utterances = append(utterances, t.Text)
	}
	s.emit("recognizer_loop:utterance", map[string]any{
		"utterances": utterances,
		"lang":       lang,
	})
	return nil
}

func decodeB64WAV(data map[string]any) ([]byte, error) {
	encoded, _ := data["audio"].(string)
	if encoded == "" {
		return nil, fmt.Errorf("service: missing \"audio\" field")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("service: decode base64 audio: %w", err)
	}
	decoded, err := audio.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("service: decode wav: %w", err)
	}
	return decoded.PCM, nil
}

func transcriptPairs(ts []stt.Transcript) [][2]any {
	pairs := make([][2]any, 0, len(ts))
	for _, t := range ts {
		pairs = append(pairs, [2]any{t.Text, t.Confidence})
	}
	return pairs
}

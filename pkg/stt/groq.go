package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vocodex/listener/pkg/audio"
)

// GroqBackend is a BatchTranscriber backed by Groq's Whisper-compatible
// endpoint, adapted from pkg/providers/stt/groq.go (same wire format; the
// teacher's orchestrator.Language type becomes a plain BCP-47 string here
// since this module has no conversational Language enum).
type GroqBackend struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
}

func NewGroqBackend(apiKey, model string) *GroqBackend {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqBackend{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
	}
}

func (s *GroqBackend) SetSampleRate(rate int) { s.sampleRate = rate }
func (s *GroqBackend) Name() string           { return "groq-stt" }

func (s *GroqBackend) Transcribe(ctx context.Context, pcm []byte, lang string) (string, error) {
	wavData := audio.NewWavBuffer(pcm, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	if lang != "" {
		if err := writer.WriteField("language", lang); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("groq stt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramBackendTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("language") != "en" {
			t.Errorf("expected language query param 'en', got %q", r.URL.Query().Get("language"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]interface{}{
				"channels": []interface{}{
					map[string]interface{}{
						"alternatives": []interface{}{
							map[string]interface{}{"transcript": "deepgram transcription"},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	s := NewDeepgramBackend("test-key")
	s.url = server.URL

	result, err := s.Transcribe(context.Background(), []byte{0}, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "deepgram transcription" {
		t.Errorf("expected 'deepgram transcription', got %q", result)
	}
	if s.Name() != "deepgram-stt" {
		t.Errorf("expected deepgram-stt, got %s", s.Name())
	}
}

func TestDeepgramBackendEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"results": map[string]interface{}{"channels": []interface{}{}}})
	}))
	defer server.Close()

	s := NewDeepgramBackend("test-key")
	s.url = server.URL

	result, err := s.Transcribe(context.Background(), []byte{0}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty result, got %q", result)
	}
}

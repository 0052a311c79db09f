// Package config loads the listener's TOML service configuration and YAML
// hotword manifest, and watches both for hot-reload, grounded on
// pkg/core/config/config.go's TOML-struct-with-defaults pattern and
// cmd/agent/main.go's godotenv environment overlay.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ServiceConfig is the listener.toml document: everything under the
// "listener", "hotwords defaults", "stt", and top-level keys listed in
// SPEC_FULL.md §6, except the hotwords.<name> records themselves which live
// in a separate YAML manifest reloaded independently (hotword.Manifest in
// pkg/hotword).
type ServiceConfig struct {
	Listener  ListenerConfig `toml:"listener"`
	STT       STTConfig      `toml:"stt"`
	Sounds    SoundsConfig   `toml:"sounds"`
	Lang      string         `toml:"lang"`
	SecondaryLangs []string  `toml:"secondary_langs"`
	ConfirmListening  bool   `toml:"confirm_listening"`
	FilterHallucinations bool `toml:"filter_hallucinations"`
	HallucinationList []string `toml:"hallucination_list"`
	OptIn     bool           `toml:"opt_in"`
}

type ListenerConfig struct {
	SampleRate     int    `toml:"sample_rate"`
	SampleWidth    int    `toml:"sample_width"`
	SampleChannels int    `toml:"sample_channels"`
	ChunkSize      int    `toml:"chunk_size"`
	PeriodSize     int    `toml:"period_size"`
	Multiplier     int    `toml:"multiplier"`

	AudioTimeoutSeconds    float64 `toml:"audio_timeout"`
	AudioRetries           int     `toml:"audio_retries"`
	AudioRetryDelaySeconds float64 `toml:"audio_retry_delay"`
	DeviceName             string  `toml:"device_name"`

	WakeWord      string `toml:"wake_word"`
	StandUpWord   string `toml:"stand_up_word"`

	SpeechBeginSeconds  float64 `toml:"speech_begin"`
	SilenceEndSeconds   float64 `toml:"silence_end"`

	RecordingTimeoutSeconds           float64 `toml:"recording_timeout"`
	RecordingTimeoutWithSilenceSeconds float64 `toml:"recording_timeout_with_silence"`
	RecordingModeMaxSilenceSeconds    float64 `toml:"recording_mode_max_silence_seconds"`

	UtteranceChunksToRewind int  `toml:"utterance_chunks_to_rewind"`
	WakewordChunksToSave    int  `toml:"wakeword_chunks_to_save"`

	ContinuousListen bool `toml:"continuous_listen"`
	HybridListen     bool `toml:"hybrid_listen"`
	InstantListen    bool `toml:"instant_listen"`
	RemoveSilence    bool `toml:"remove_silence"`
	MuteDuringOutput bool `toml:"mute_during_output"`

	RecordWakeWords bool   `toml:"record_wake_words"`
	SaveUtterances  bool   `toml:"save_utterances"`
	SavePath        string `toml:"save_path"`
	UtteranceFilename string `toml:"utterance_filename"`

	WakeWordUpload UploadConfig `toml:"wake_word_upload"`
	STTUpload      UploadConfig `toml:"stt_upload"`

	FakeBargeIn    bool    `toml:"fake_barge_in"`
	BargeInVolume  float64 `toml:"barge_in_volume"`

	MinSTTConfidence float64 `toml:"min_stt_confidence"`
	MaxTranscripts   int     `toml:"max_transcripts"`
}

type UploadConfig struct {
	URL     string `toml:"url"`
	Disable bool   `toml:"disable"`
}

type STTConfig struct {
	Module         string `toml:"module"`
	FallbackModule string `toml:"fallback_module"`
}

type SoundsConfig struct {
	StartListening string `toml:"start_listening"`
	EndListening   string `toml:"end_listening"`
}

// DefaultServiceConfig mirrors ovos_dinkum_listener's stated defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Listener: ListenerConfig{
			SampleRate:              16000,
			SampleWidth:             2,
			SampleChannels:          1,
			ChunkSize:               4096,
			AudioRetries:            3,
			AudioRetryDelaySeconds:  2,
			AudioTimeoutSeconds:     5,
			WakeWord:                "hey mycroft",
			StandUpWord:             "wake up",
			SpeechBeginSeconds:      0.3,
			SilenceEndSeconds:       0.7,
			RecordingTimeoutSeconds: 10,
			RecordingTimeoutWithSilenceSeconds: 5,
			RecordingModeMaxSilenceSeconds:     30,
			UtteranceChunksToRewind: 2,
			WakewordChunksToSave:    0,
			SavePath:                "~/.local/share/listener",
			UtteranceFilename:       "{md5}-{uuid4}",
			BargeInVolume:           0.6,
			MinSTTConfidence:        0.6,
			MaxTranscripts:          1,
		},
		ConfirmListening:     true,
		FilterHallucinations: true,
		Lang:                 "en-us",
	}
}

// LoadServiceConfig reads and decodes path over the defaults, then applies
// os.ExpandEnv to save_path (the one field the corpus's config loaders
// consistently env-expand).
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.Listener.SavePath = os.ExpandEnv(cfg.Listener.SavePath)
	return cfg, nil
}

// Command listenerd wires the voice-input front-end together: wake-word
// detection, VAD-timed recording, streaming STT, the transformer pipeline,
// and the bus-facing supervisor, watching its config and hotword manifest
// for hot reload. Grounded on cmd/agent/main.go's provider-selection and
// signal-handling style, restructured around cmd/mdw/cmd's cobra root
// command (github.com/spf13/cobra) for flag parsing.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vocodex/listener/pkg/audio"
	"github.com/vocodex/listener/pkg/bus"
	"github.com/vocodex/listener/pkg/chunk"
	"github.com/vocodex/listener/pkg/config"
	"github.com/vocodex/listener/pkg/hotword"
	"github.com/vocodex/listener/pkg/service"
	"github.com/vocodex/listener/pkg/stt"
	"github.com/vocodex/listener/pkg/transform"
	"github.com/vocodex/listener/pkg/vad"
	"github.com/vocodex/listener/pkg/voiceloop"
)

var (
	configPath   string
	manifestPath string
	busAddr      string

	version   = "0.1.0"
	gitCommit = "development"
)

var rootCmd = &cobra.Command{
	Use:   "listenerd",
	Short: "Voice-input front-end: wake word, VAD, streaming STT, bus events",
	Long: `listenerd listens to a microphone, spots a configured wake word,
records a command with voice-activity-timed boundaries, transcribes it with
a streaming/fallback STT backend, and emits the result on a message bus.

Configuration lives in a TOML file (--config) and a YAML hotword manifest
(--hotwords); both are watched for changes and hot-reloaded without a
restart.`,
	RunE: runListener,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the listenerd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("listenerd v%s (%s)\n", version, gitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "listener.toml", "path to the service TOML config")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "hotwords", "hotwords.yaml", "path to the hotword YAML manifest")
	rootCmd.PersistentFlags().StringVar(&busAddr, "bus-addr", "", "websocket bus address (empty runs an in-process bus)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runListener(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "listenerd: ", log.LstdFlags)
	secrets := config.LoadSecrets()

	cfg, err := config.LoadServiceConfig(configPath)
	if err != nil {
		logger.Printf("config not loaded (%v), using defaults", err)
		cfg = config.DefaultServiceConfig()
	}

	manifestRaw, err := os.ReadFile(manifestPath)
	if err != nil {
		logger.Printf("hotword manifest not loaded (%v), starting with none", err)
		manifestRaw = []byte{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var b bus.Bus
	if busAddr != "" {
		b, err = bus.Dial(ctx, busAddr)
		if err != nil {
			return fmt.Errorf("listenerd: dial bus %s: %w", busAddr, err)
		}
	} else {
		b = bus.NewLocal(logger)
	}
	defer b.Close()

	var sup *service.Supervisor
	loopFactory := func(cfg config.ServiceConfig, manifestRaw []byte) (service.Loop, error) {
		return buildLoop(cfg, manifestRaw, secrets, sup.Callbacks, logger)
	}

	sup = service.New(service.Params{
		Bus:         b,
		Config:      cfg,
		STT:         buildStreamer(cfg.STT.Module, cfg, secrets),
		LoopFactory: loopFactory,
		ManifestRaw: manifestRaw,
		Logger:      logger,
	})
	defer sup.Close()

	loop, err := buildLoop(cfg, manifestRaw, secrets, sup.Callbacks, logger)
	if err != nil {
		return fmt.Errorf("listenerd: build loop: %w", err)
	}
	sup.SetLoop(loop)

	watcher, err := config.NewWatcher(configPath, manifestPath, logger)
	if err != nil {
		logger.Printf("config watch disabled: %v", err)
	} else {
		defer watcher.Close()
		go watchReload(watcher, sup, logger)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Println("shutting down")
		cancel()
	}()

	logger.Printf("listening (wake word %q, stt %s)", cfg.Listener.WakeWord, cfg.STT.Module)
	return sup.Run(ctx)
}

// watchReload re-reads the config file and hotword manifest on every
// filesystem event the watcher reports and hands them to Supervisor.Reload,
// which itself decides whether any hashed slice actually changed.
func watchReload(w *config.Watcher, sup *service.Supervisor, logger *log.Logger) {
	for range w.Changed {
		cfg, err := config.LoadServiceConfig(configPath)
		if err != nil {
			logger.Printf("reload: config reload failed: %v", err)
			continue
		}
		manifestRaw, err := os.ReadFile(manifestPath)
		if err != nil {
			logger.Printf("reload: manifest reload failed: %v", err)
			continue
		}
		if err := sup.Reload(cfg, manifestRaw); err != nil {
			logger.Printf("reload: %v", err)
		}
	}
}

// buildLoop constructs a fresh VoiceLoop from cfg/manifestRaw, used both for
// the initial startup loop and by Supervisor's LoopFactory on reload.
func buildLoop(cfg config.ServiceConfig, manifestRaw []byte, secrets config.Secrets, callbacks func() voiceloop.Callbacks, logger *log.Logger) (service.Loop, error) {
	format := chunk.Format{
		SampleRate:     cfg.Listener.SampleRate,
		SampleWidth:    cfg.Listener.SampleWidth,
		SampleChannels: cfg.Listener.SampleChannels,
	}
	chunkSize := cfg.Listener.ChunkSize
	if chunkSize == 0 {
		chunkSize = 4096
	}

	source := audio.NewMicSource(format, chunkSize)

	detector, err := buildVAD(format)
	if err != nil {
		logger.Printf("webrtc vad unavailable (%v), falling back to rms vad", err)
	}

	manifest, err := hotword.ParseManifest(manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("parse hotword manifest: %w", err)
	}
	records, err := hotword.BuildRecords(manifest, hotword.LoadOptions{
		DefaultLang:          cfg.Lang,
		MainListenWord:       cfg.Listener.WakeWord,
		WakeupWord:           cfg.Listener.StandUpWord,
		ConfirmListening:     cfg.ConfirmListening,
		GlobalListeningSound: cfg.Sounds.StartListening,
		NewEngine:            newHotwordEngine(format),
	})
	if err != nil {
		return nil, fmt.Errorf("build hotword records: %w", err)
	}
	hotwords := hotword.NewSet(format.SampleRate * format.SampleWidth * format.SampleChannels * 3)
	hotwords.Load(records)

	transformers := transform.NewChain(
		[]transform.Transformer{transform.NewLanguageHintTransformer(1, cfg.Lang)},
		func(plugin string, err any) { logger.Printf("transformer %s panicked: %v", plugin, err) },
	)

	primary := buildStreamer(cfg.STT.Module, cfg, secrets)
	if primary == nil {
		return nil, fmt.Errorf("no stt provider configured for module %q", cfg.STT.Module)
	}
	var fallback stt.Streamer
	if cfg.STT.FallbackModule != "" {
		fallback = buildStreamer(cfg.STT.FallbackModule, cfg, secrets)
	}

	loop := voiceloop.New(voiceloop.Params{
		Source:       source,
		VAD:          detector,
		Hotwords:     hotwords,
		Transformers: transformers,
		Primary:      primary,
		Fallback:     fallback,
		Config:       loopConfig(cfg),
		Callbacks:    callbacks(),
	})

	switch {
	case cfg.Listener.HybridListen:
		loop.RequestMode(voiceloop.ModeHybrid)
	case cfg.Listener.ContinuousListen:
		loop.RequestMode(voiceloop.ModeContinuous)
	}
	return loop, nil
}

// buildVAD prefers the WebRTC-backed detector, falling back to the
// energy-threshold one if the underlying library rejects the sample rate.
func buildVAD(format chunk.Format) (vad.Detector, error) {
	const aggressiveness = 2
	const minSilenceFrames = 10
	d, err := vad.NewWebRTCVAD(format, aggressiveness, minSilenceFrames)
	if err != nil {
		return vad.NewRMSVAD(format, 0.02, 3, 10), err
	}
	return d, nil
}

// newHotwordEngine returns a hotword.EngineFactory. Concrete acoustic
// wake-word modeling is out of scope (see pkg/hotword/engine.go's own
// note); every manifest entry gets the same energy-gated engine regardless
// of its configured module name.
func newHotwordEngine(format chunk.Format) hotword.EngineFactory {
	return func(name, module, lang string) (hotword.Engine, error) {
		return hotword.NewEnergyGateEngine(format, 0.02, format.SampleRate/10), nil
	}
}

// buildStreamer selects and wraps an STT batch provider by module name,
// mirroring cmd/agent/main.go's provider switch.
func buildStreamer(module string, cfg config.ServiceConfig, secrets config.Secrets) stt.Streamer {
	sampleRate := cfg.Listener.SampleRate

	var backend stt.BatchTranscriber
	switch module {
	case "openai":
		if secrets.OpenAI == "" {
			return nil
		}
		backend = stt.NewOpenAIBackend(secrets.OpenAI, "whisper-1")
	case "deepgram":
		if secrets.Deepgram == "" {
			return nil
		}
		backend = stt.NewDeepgramBackend(secrets.Deepgram)
	case "assemblyai":
		if secrets.AssemblyAI == "" {
			return nil
		}
		backend = stt.NewAssemblyAIBackend(secrets.AssemblyAI)
	case "groq", "":
		if secrets.Groq == "" {
			return nil
		}
		backend = stt.NewGroqBackend(secrets.Groq, "whisper-large-v3-turbo")
	default:
		return nil
	}
	if s, ok := backend.(interface{ SetSampleRate(int) }); ok {
		s.SetSampleRate(sampleRate)
	}
	return stt.NewStreamAdapter(backend)
}

// loopConfig translates the TOML-loaded service config into voiceloop's
// chunk-denominated timing config.
func loopConfig(cfg config.ServiceConfig) voiceloop.Config {
	d := voiceloop.DefaultConfig()
	l := cfg.Listener
	return voiceloop.Config{
		SpeechSeconds:                   orDefault(l.SpeechBeginSeconds, d.SpeechSeconds),
		SilenceSeconds:                  orDefault(l.SilenceEndSeconds, d.SilenceSeconds),
		TimeoutSeconds:                  orDefault(l.RecordingTimeoutSeconds, d.TimeoutSeconds),
		TimeoutSecondsWithSilence:       orDefault(l.RecordingTimeoutWithSilenceSeconds, d.TimeoutSecondsWithSilence),
		ConfirmationSeconds:             d.ConfirmationSeconds,
		RecordingModeMaxSilenceSeconds:  orDefault(l.RecordingModeMaxSilenceSeconds, d.RecordingModeMaxSilenceSeconds),
		NumSTTRewindChunks:              orDefaultInt(l.UtteranceChunksToRewind, d.NumSTTRewindChunks),
		NumHotwordKeepChunks:            orDefaultInt(l.WakewordChunksToSave, d.NumHotwordKeepChunks),
		InstantListen:                   l.InstantListen,
		RemoveSilence:                   l.RemoveSilence,
		MinSTTConfidence:                l.MinSTTConfidence,
		MaxTranscripts:                  orDefaultInt(l.MaxTranscripts, d.MaxTranscripts),
		Lang:                            cfg.Lang,
		SecondaryLangs:                  cfg.SecondaryLangs,
		FilterHallucinations:            cfg.FilterHallucinations,
		HallucinationList:               orDefaultList(cfg.HallucinationList, d.HallucinationList),
		WakeupTimeoutSeconds:            d.WakeupTimeoutSeconds,
		SourceTimeoutSeconds:            orDefault(l.AudioTimeoutSeconds, d.SourceTimeoutSeconds),
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultList(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

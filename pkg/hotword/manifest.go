package hotword

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ManifestEntry is one hotwords.<name> record as read from the YAML
// manifest, mirroring hotwords.py's per-word config dict.
type ManifestEntry struct {
	Module    string `yaml:"module"`
	Active    *bool  `yaml:"active"` // nil means "use default-enable rule"
	Listen    bool   `yaml:"listen"`
	Wakeup    bool   `yaml:"wakeup"`
	Stopword  bool   `yaml:"stopword"`
	Trigger   bool   `yaml:"trigger"`
	Sound     string `yaml:"sound"`
	Utterance string `yaml:"utterance"`
	BusEvent  string `yaml:"bus_event"`
	STTLang   string `yaml:"stt_lang"`
}

// Manifest is the full hotwords.yaml document: a map of normalized-or-raw
// keyword name to its entry.
type Manifest map[string]ManifestEntry

// ParseManifest decodes a hotwords.yaml document.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("hotword: parse manifest: %w", err)
	}
	return m, nil
}

// EngineFactory builds the concrete Engine for one record, keyed by the
// manifest's "module" field — the corpus treats wake-word engine backends
// as pluggable, so this module never hardcodes one.
type EngineFactory func(name, module, lang string) (Engine, error)

// LoadOptions carries the global defaults load_hotword_engines consults
// (default_lang, confirm_listening, sounds.start_listening, and the
// configured main listen/wake-up words).
type LoadOptions struct {
	DefaultLang          string
	MainListenWord       string
	WakeupWord           string
	ConfirmListening     bool
	GlobalListeningSound string
	NewEngine            EngineFactory
}

// BuildRecords turns a parsed Manifest into loadable Records, applying the
// same default-enable and global-sound rules as hotwords.py's
// load_hotword_engines: a record with no explicit "active" is enabled only
// if its name is the configured main listen or wake-up word; a listen
// record with no sound of its own inherits the global confirm_listening
// sound.
func BuildRecords(manifest Manifest, opts LoadOptions) ([]*Record, error) {
	mainWW := NormalizeName(opts.MainListenWord)
	wakeupWW := NormalizeName(opts.WakeupWord)

	var records []*Record
	for rawName, entry := range manifest {
		name := NormalizeName(rawName)

		lang := entry.STTLang
		if lang == "" {
			lang = opts.DefaultLang
		}

		active := entry.Active != nil && *entry.Active
		if entry.Active == nil {
			active = name == mainWW || name == wakeupWW
		}
		if !active {
			continue
		}

		role := RoleHot
		switch {
		case entry.Listen || name == mainWW:
			role = RoleListen
		case entry.Wakeup || name == wakeupWW:
			role = RoleWakeup
		case entry.Stopword:
			role = RoleStop
		}

		sound := entry.Sound
		if sound == "" && role == RoleListen && opts.ConfirmListening {
			sound = opts.GlobalListeningSound
		}

		engine, err := opts.NewEngine(name, entry.Module, lang)
		if err != nil {
			return nil, fmt.Errorf("hotword: load %q: %w", name, err)
		}

		records = append(records, &Record{
			Name:       name,
			Role:       role,
			Engine:     engine,
			Sound:      sound,
			BusEvent:   entry.BusEvent,
			Trigger:    entry.Trigger,
			Utterance:  entry.Utterance,
			STTLang:    lang,
			Active:     true,
			EngineName: entry.Module,
		})
	}
	return records, nil
}

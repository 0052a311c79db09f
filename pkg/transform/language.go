package transform

import "strings"

// LanguageHintTransformer is a sample plugin that attaches a detected
// language hint at utterance end. In production a real transformer would
// run a language-ID model; this reference implementation takes a fixed
// hint, exercising the same metadata-merge path the VoiceLoop validates
// against configured languages.
type LanguageHintTransformer struct {
	priority int
	lang     string
}

// NewLanguageHintTransformer builds a plugin that always reports lang under
// the "stt_lang" metadata key.
func NewLanguageHintTransformer(priority int, lang string) *LanguageHintTransformer {
	return &LanguageHintTransformer{priority: priority, lang: lang}
}

func (l *LanguageHintTransformer) Name() string  { return "language-hint" }
func (l *LanguageHintTransformer) Priority() int { return l.priority }

func (l *LanguageHintTransformer) FeedAudio(chunk []byte)   {}
func (l *LanguageHintTransformer) FeedHotword(chunk []byte) {}
func (l *LanguageHintTransformer) FeedSpeech(chunk []byte)  {}

func (l *LanguageHintTransformer) Transform(audio []byte) ([]byte, map[string]any) {
	return nil, map[string]any{"stt_lang": l.lang}
}

func (l *LanguageHintTransformer) Shutdown() {}

// ValidLanguage reports whether hint's BCP-47 primary subtag is among
// {lang} ∪ secondaryLangs, per the spec's language validation design note.
func ValidLanguage(hint, lang string, secondaryLangs []string) bool {
	if hint == "" {
		return false
	}
	primary := strings.ToLower(strings.SplitN(hint, "-", 2)[0])
	if primary == strings.ToLower(strings.SplitN(lang, "-", 2)[0]) {
		return true
	}
	for _, s := range secondaryLangs {
		if primary == strings.ToLower(strings.SplitN(s, "-", 2)[0]) {
			return true
		}
	}
	return false
}

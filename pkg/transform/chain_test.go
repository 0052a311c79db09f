package transform

import "testing"

type fakeTransformer struct {
	name     string
	priority int
	meta     map[string]any
	feeds    int
}

func (f *fakeTransformer) Name() string             { return f.name }
func (f *fakeTransformer) Priority() int            { return f.priority }
func (f *fakeTransformer) FeedAudio(chunk []byte)   { f.feeds++ }
func (f *fakeTransformer) FeedHotword(chunk []byte) {}
func (f *fakeTransformer) FeedSpeech(chunk []byte)  {}
func (f *fakeTransformer) Transform(audio []byte) ([]byte, map[string]any) {
	return nil, f.meta
}
func (f *fakeTransformer) Shutdown() {}

type panicTransformer struct{ fakeTransformer }

func (p *panicTransformer) Transform(audio []byte) ([]byte, map[string]any) {
	panic("boom")
}

func TestHigherPriorityMetadataWins(t *testing.T) {
	low := &fakeTransformer{name: "low", priority: 1, meta: map[string]any{"stt_lang": "fr"}}
	high := &fakeTransformer{name: "high", priority: 10, meta: map[string]any{"stt_lang": "en"}}

	c := NewChain([]Transformer{low, high}, nil)
	_, meta := c.Transform(nil)

	if meta["stt_lang"] != "en" {
		t.Fatalf("expected higher-priority plugin's metadata to win, got %v", meta["stt_lang"])
	}
}

func TestPluginPanicIsIsolated(t *testing.T) {
	var caught string
	bad := &panicTransformer{fakeTransformer{name: "bad", priority: 5}}
	good := &fakeTransformer{name: "good", priority: 1, meta: map[string]any{"ok": true}}

	c := NewChain([]Transformer{bad, good}, func(plugin string, err any) { caught = plugin })
	_, meta := c.Transform(nil)

	if caught != "bad" {
		t.Fatalf("expected panic from 'bad' to be caught, got %q", caught)
	}
	if meta["ok"] != true {
		t.Fatalf("expected the other plugin to still run, got %v", meta)
	}
}

func TestFeedAudioReachesAllPlugins(t *testing.T) {
	a := &fakeTransformer{name: "a", priority: 1}
	b := &fakeTransformer{name: "b", priority: 2}
	c := NewChain([]Transformer{a, b}, nil)
	c.FeedAudio(make([]byte, 4))
	if a.feeds != 1 || b.feeds != 1 {
		t.Fatalf("expected both plugins fed, got a=%d b=%d", a.feeds, b.feeds)
	}
}

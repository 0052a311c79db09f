package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listener.toml")
	if err := os.WriteFile(path, []byte("lang = \"en-us\"\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	w, err := NewWatcher(path, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("lang = \"es-es\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-w.Changed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

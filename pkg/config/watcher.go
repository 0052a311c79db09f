package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies on any write to the service config file or hotword
// manifest file, letting the caller re-load and re-hash before deciding
// which slices actually changed.
type Watcher struct {
	fsw      *fsnotify.Watcher
	Changed  chan struct{}
	logger   *log.Logger
}

// NewWatcher watches configPath and manifestPath for writes/creates/renames.
func NewWatcher(configPath, manifestPath string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range []string{configPath, manifestPath} {
		if p == "" {
			continue
		}
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w := &Watcher{fsw: fsw, Changed: make(chan struct{}, 1), logger: logger}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.Changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("config: watch error: %v", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

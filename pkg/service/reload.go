package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocodex/listener/pkg/config"
	"github.com/vocodex/listener/pkg/voiceloop"
)

// reloadLockTimeout bounds how long Reload waits for a prior reload in
// flight before giving up, matching service.py's reload lock timeout.
const reloadLockTimeout = 30 * time.Second

// ErrNoLoopFactory is returned by Reload when a config-hash slice the
// supervisor doesn't own directly changed, but no LoopFactory was supplied
// to rebuild the loop from the new configuration.
var ErrNoLoopFactory = errors.New("service: reload needs a loop rebuild but no LoopFactory was configured")

// Run drives the loop until ctx is cancelled, registering bus handlers for
// its lifetime and transparently restarting the loop whenever Reload swaps
// it out from under a running Run (mirroring service.py's reload_configuration
// calling voice_loop.stop() then voice_loop.start() around a component
// rebuild, generalized to the whole loop since this module's Loop
// abstraction has no per-component setters to poke individually).
func (s *Supervisor) Run(ctx context.Context) error {
	unregister := s.registerHandlers()
	defer unregister()

	for {
		loop := s.currentLoop()
		loopCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancelRun = cancel
		s.mu.Unlock()

		err := loop.Run(loopCtx)
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		// loop.Run returned nil with the outer ctx still alive: Reload
		// cancelled loopCtx to swap in a freshly built loop. Loop back and
		// pick it up.
	}
}

// Reload checks cfg/hotwordManifestRaw's hash against the last applied
// configuration and, if any of the four independently-tracked slices
// changed, rebuilds the loop via LoopFactory and restarts it — matching
// service.py's reload_configuration, minus the component-by-component
// in-place swap its concrete voice_loop object allowed (this module's Loop
// interface only exposes behavior, not field setters, so a changed slice
// means a full loop rebuild here rather than a partial one there).
func (s *Supervisor) Reload(cfg config.ServiceConfig, hotwordManifestRaw []byte) error {
	select {
	case s.reloadSem <- struct{}{}:
	case <-time.After(reloadLockTimeout):
		return voiceloop.ErrReloadTimeout
	}
	defer func() { <-s.reloadSem }()

	newHash := config.Hash(cfg, hotwordManifestRaw)
	sttChanged, fallbackChanged, hotwordsChanged, loopChanged := s.appliedHash.Changed(newHash)
	if !sttChanged && !fallbackChanged && !hotwordsChanged && !loopChanged {
		return nil
	}

	needsRebuild := loopChanged ||
		(sttChanged && !s.DisableReload) ||
		(fallbackChanged && !s.DisableReload && !s.DisableFallbackReload) ||
		(hotwordsChanged && !s.DisableHotwordReload)

	if !needsRebuild {
		s.cfg = cfg
		s.manifestRaw = hotwordManifestRaw
		s.appliedHash = newHash
		return nil
	}

	if s.loopFactory == nil {
		return ErrNoLoopFactory
	}

	newLoop, err := s.loopFactory(cfg, hotwordManifestRaw)
	if err != nil {
		return fmt.Errorf("service: reload: build loop: %w", err)
	}

	s.mu.Lock()
	cancelRun := s.cancelRun
	s.loop = newLoop
	s.mu.Unlock()
	if cancelRun != nil {
		cancelRun()
	}

	s.cfg = cfg
	s.manifestRaw = hotwordManifestRaw
	s.appliedHash = newHash
	s.logger.Printf("service: reload completed (stt=%v fallback=%v hotwords=%v loop=%v)",
		sttChanged, fallbackChanged, hotwordsChanged, loopChanged)
	return nil
}

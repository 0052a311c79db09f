package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Slices names the four independently-hashed configuration groups: the STT
// engine config, the fallback STT engine config, the hotword manifest, and
// everything else the voice loop reads (timing, VAD, mic). Splitting the
// hash this way means a hotword-only edit doesn't tear down the STT
// streamer, matching §4.8/§9's independent reload granularity.
type Slices struct {
	STT      string
	Fallback string
	Hotwords string
	Loop     string
}

// Hash produces the four independent slice digests for cfg and the raw
// hotword manifest bytes (hashed separately from cfg since it's a distinct
// YAML document reloaded on its own schedule).
func Hash(cfg ServiceConfig, hotwordManifestRaw []byte) Slices {
	return Slices{
		STT:      hashOf(fmt.Sprintf("%+v", struct {
			Module string
		}{cfg.STT.Module})),
		Fallback: hashOf(fmt.Sprintf("%+v", struct {
			Module string
		}{cfg.STT.FallbackModule})),
		Hotwords: hashOf(string(hotwordManifestRaw)),
		Loop: hashOf(fmt.Sprintf("%+v", struct {
			Listener             ListenerConfig
			Sounds               SoundsConfig
			Lang                 string
			SecondaryLangs       []string
			ConfirmListening     bool
			FilterHallucinations bool
			HallucinationList    []string
		}{cfg.Listener, cfg.Sounds, cfg.Lang, cfg.SecondaryLangs, cfg.ConfirmListening, cfg.FilterHallucinations, cfg.HallucinationList})),
	}
}

// Changed reports which slices differ between old and next.
func (s Slices) Changed(next Slices) (stt, fallback, hotwords, loop bool) {
	return s.STT != next.STT, s.Fallback != next.Fallback, s.Hotwords != next.Hotwords, s.Loop != next.Loop
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

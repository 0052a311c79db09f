package voiceloop

// SoundDurationLookup resolves a confirmation-sound file's playback
// duration. Per DESIGN.md's resolution of the corresponding spec Open
// Question, this module deliberately does not guess how a sound's duration
// is measured (decoding an audio file header, a static config table, ...)
// — callers inject whichever lookup fits their deployment. A nil lookup, or
// one that returns ok=false, falls back to Config.ConfirmationSeconds.
type SoundDurationLookup func(soundName string) (seconds float64, ok bool)

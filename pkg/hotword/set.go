package hotword

import (
	"github.com/vocodex/listener/pkg/audio"
)

// Set owns the loaded Records and the CyclicBuffer engines are probed
// against, dispatching update()/found() to the role-subset implied by
// State. Grounded on hotwords.py's HotwordContainer.
type Set struct {
	state   State
	buffer  *audio.CyclicBuffer
	records map[string]*Record // keyed by normalized name
}

// NewSet builds an empty set with a rolling window of windowBytes, starting
// in StateHotword (hotwords.py's HotwordContainer default).
func NewSet(windowBytes int) *Set {
	return &Set{
		state:   StateHotword,
		buffer:  audio.NewCyclicBuffer(windowBytes),
		records: make(map[string]*Record),
	}
}

// SetState selects the role-subset for the next Update/Found call.
func (s *Set) SetState(state State) { s.state = state }
func (s *Set) State() State         { return s.state }

// Load replaces the engine set with records, matching load_hotword_engines'
// semantics: records are keyed by normalized name, and any record without an
// explicit Active flag is enabled only if it's the main listen or wake-up
// word (callers resolve that default before calling Load).
func (s *Set) Load(records []*Record) {
	s.records = make(map[string]*Record, len(records))
	for _, r := range records {
		if !r.Active {
			continue
		}
		s.records[NormalizeName(r.Name)] = r
	}
}

// Get returns the full metadata for a loaded record.
func (s *Set) Get(name string) (*Record, bool) {
	r, ok := s.records[NormalizeName(name)]
	return r, ok
}

func (s *Set) subset(role func(Role) bool) []*Record {
	var out []*Record
	for _, r := range s.records {
		if role(r.Role) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Set) activeSubset() []*Record {
	switch s.state {
	case StateListen:
		return s.subset(func(r Role) bool { return r == RoleListen })
	case StateWakeup:
		return s.subset(func(r Role) bool { return r == RoleWakeup })
	case StateRecording:
		return s.subset(func(r Role) bool { return r == RoleStop })
	default:
		return s.subset(func(r Role) bool { return r == RoleHot })
	}
}

// Update appends chunk to the rolling window and forwards it to every
// engine in the current role-subset.
func (s *Set) Update(chunk []byte) {
	s.buffer.Append(chunk)
	for _, r := range s.activeSubset() {
		r.Engine.Update(chunk)
	}
}

// Found iterates the current role-subset and returns the first engine
// reporting detection against the rolling window. Engine errors are the
// caller's concern (Engine.FoundWakeWord does not return error by design —
// implementations must recover internally and report false). Returns
// ErrNoListenEngines if State is Listen and no engine is loaded for it.
func (s *Set) Found() (string, error) {
	subset := s.activeSubset()
	if s.state == StateListen && len(subset) == 0 {
		return "", ErrNoListenEngines
	}
	audioData := s.buffer.Get()
	for _, r := range subset {
		if r.Engine.FoundWakeWord(audioData) {
			return r.Name, nil
		}
	}
	return "", nil
}

// Reset clears the rolling window and resets every loaded engine.
func (s *Set) Reset() {
	s.buffer.Clear()
	for _, r := range s.records {
		r.Engine.Reset()
	}
}

// Shutdown tears down every loaded engine and drops all records.
func (s *Set) Shutdown() {
	for _, r := range s.records {
		r.Engine.Shutdown()
	}
	s.records = make(map[string]*Record)
}

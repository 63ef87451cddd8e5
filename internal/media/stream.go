package media

import (
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Stream is the set of local tracks currently produced by this side.
type Stream struct {
	mu     sync.Mutex
	tracks []Track
}

func (s *Stream) add(t Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *Stream) remove(t Track) {
	s.mu.Lock()
	s.tracks = slices.DeleteFunc(s.tracks, func(x Track) bool { return x == t })
	s.mu.Unlock()
}

// Tracks returns a snapshot of the local tracks.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tracks)
}

// Track returns the local track of kind, or nil.
func (s *Stream) Track(kind webrtc.RTPCodecType) Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pick(s.tracks, kind)
}

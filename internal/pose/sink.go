package pose

import "sync"

// Sink is the latest-value register for the accepted pose. It has a single
// writer (the pose stream) and any number of readers. A pose is always replaced
// as a whole, so readers never observe a partially written value.
type Sink struct {
	mu     sync.RWMutex
	last   Pose
	writes uint64
}

// NewSink returns a sink holding the zero pose.
func NewSink() *Sink {
	return &Sink{}
}

// Write replaces the current pose.
func (s *Sink) Write(p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = p
	s.writes++
}

// Read returns the most recently written pose, or the zero pose if nothing was
// written yet.
func (s *Sink) Read() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Writes returns the number of poses written so far.
func (s *Sink) Writes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

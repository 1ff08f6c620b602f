package trajectory

import (
	"slices"
	"sync"

	"github.com/roman-kulish/mocap-flight/internal/pose"
)

// Observer is notified of every pose appended to a Log, in append order. It is
// called with the log's lock held and must not block.
type Observer func(p pose.Pose)

// WithObserver registers an observer that receives each appended pose
func WithObserver(o Observer) func(*Log) {
	return func(l *Log) {
		l.observers = append(l.observers, o)
	}
}

// WithCapacity preallocates room for n poses
func WithCapacity(n int) func(*Log) {
	return func(l *Log) {
		l.poses = make([]pose.Pose, 0, n)
	}
}

// Log is the append-only, ordered record of accepted poses. Entries are never
// removed or reordered.
type Log struct {
	mu        sync.RWMutex
	poses     []pose.Pose
	observers []Observer
}

// NewLog creates an empty trajectory log
func NewLog(options ...func(*Log)) *Log {
	l := Log{}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Append adds p to the end of the log.
func (l *Log) Append(p pose.Pose) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.poses = append(l.poses, p)
	for _, o := range l.observers {
		o(p)
	}
}

// Snapshot returns a copy of every pose appended so far. It is safe to call while
// appends are in progress and always returns a consistent prefix of the log.
func (l *Log) Snapshot() []pose.Pose {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.poses)
}

// Len returns the number of poses in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.poses)
}

// PathLength returns the total length of the polyline through points, in metres.
func PathLength(points []pose.Pose) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += points[i-1].Distance(points[i])
	}
	return total
}

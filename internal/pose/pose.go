package pose

import (
	"fmt"
	"math"
	"time"
)

// Pose is a single position reading from the motion capture system. Positions are
// in metres in the capture volume frame.
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	// Timestamp is the event time reported by the feed, nil when the message
	// carried no timing metadata.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// New returns a pose without an event timestamp.
func New(x, y, z float64) Pose {
	return Pose{X: x, Y: y, Z: z}
}

// IsValid reports whether p holds a real reading. The zero pose is the
// "no reading yet" sentinel, so a genuine reading of exactly the origin is
// indistinguishable from no reading at all.
func IsValid(p Pose) bool {
	return p.X != 0 || p.Y != 0 || p.Z != 0
}

// HasTimestamp reports whether the pose carries an event timestamp.
func (p Pose) HasTimestamp() bool {
	return p.Timestamp != nil
}

// SamePosition reports whether both poses are at the same coordinates, ignoring
// timestamps.
func (p Pose) SamePosition(o Pose) bool {
	return p.X == o.X && p.Y == o.Y && p.Z == o.Z
}

// Distance returns the euclidean distance between two poses.
func (p Pose) Distance(o Pose) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (p Pose) String() string {
	return fmt.Sprintf("(x=%.3f, y=%.3f, z=%.3f)", p.X, p.Y, p.Z)
}

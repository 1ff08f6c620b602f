package flight

// Phase is a step of the flight sequence. Phases only move forward.
type Phase int

const (
	AwaitingPose Phase = iota
	TakingOff
	Navigating
	Hovering
	Landing
	Done
)

// Phases lists every phase in execution order.
var Phases = []Phase{AwaitingPose, TakingOff, Navigating, Hovering, Landing, Done}

func (p Phase) String() string {
	switch p {
	case AwaitingPose:
		return "awaiting_pose"
	case TakingOff:
		return "taking_off"
	case Navigating:
		return "navigating"
	case Hovering:
		return "hovering"
	case Landing:
		return "landing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

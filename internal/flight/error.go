package flight

import "fmt"

// PhaseError is a fatal error raised while executing a phase. The remaining
// phases are not executed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func NewPhaseError(phase Phase, err error) *PhaseError {
	return &PhaseError{Phase: phase, Err: err}
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("flight failed while %s: %s", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

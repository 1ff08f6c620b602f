package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrTimeout is returned when the bridge did not reply within the command timeout
	ErrTimeout = errors.New("bridge did not reply in time")
)

// CommandError is a failure reported by the bridge for a command
type CommandError struct {
	Command string
	Reason  string
}

func NewCommandError(command, reason string) *CommandError {
	return &CommandError{Command: command, Reason: reason}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bridge rejected '%s': %s", e.Command, e.Reason)
}

package vehicle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is issued before the link is up
	ErrNotConnected = errors.New("vehicle not connected")

	// ErrClosed is returned when a command is issued after Close
	ErrClosed = errors.New("vehicle connection closed")
)

// ConnectError is returned when the link to the vehicle could not be
// established. No flight must be attempted after it.
type ConnectError struct {
	URI string
	Err error
}

func NewConnectError(uri string, err error) *ConnectError {
	return &ConnectError{URI: uri, Err: err}
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %s", e.URI, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

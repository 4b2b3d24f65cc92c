package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport
	// or connection.
	ErrClosed = errors.New("transport: closed")

	// ErrNoHandler is returned when no connection handler is configured.
	ErrNoHandler = errors.New("transport: no connection handler configured")

	// ErrAlreadyStarted is returned when Start is called on an already running transport.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrMessageTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrInvalidFrame is returned when a frame has an unknown kind or is truncated.
	ErrInvalidFrame = errors.New("transport: invalid frame")
)

// DisconnectError is returned by Receive after the peer disconnected with a
// reason.
type DisconnectError struct {
	Reason string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("transport: disconnected by peer: %s", e.Reason)
}

// Is lets errors.Is(err, ErrClosed) match a peer disconnect.
func (e *DisconnectError) Is(target error) bool {
	return target == ErrClosed
}

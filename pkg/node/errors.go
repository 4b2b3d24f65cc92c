package node

import "errors"

var (
	// ErrNotStarted is returned when the node is used before Start.
	ErrNotStarted = errors.New("node: not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("node: already started")

	// ErrInvalidRateLimit is returned for a negative rate limit setting.
	ErrInvalidRateLimit = errors.New("node: invalid rate limit")
)

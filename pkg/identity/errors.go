package identity

import (
	"errors"
	"fmt"
)

// Identity package errors.
var (
	// ErrNoAssociation is returned when an authenticated peer is resolved
	// without an Association configured.
	ErrNoAssociation = errors.New("identity: no association configured")

	// ErrNoNameRegistry is returned by NewResolver without a NameRegistry.
	ErrNoNameRegistry = errors.New("identity: name registry is required")
)

// RejectedError is returned when an Association refuses a peer. Message is
// passed through to the client verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("identity: association rejected: %s", e.Message)
}

package admission

import "errors"

// Disconnect texts used by the controller.
const (
	ReasonMultipleConnections = "Stop trying to connect multiple times at once."
	ReasonTakeover            = "Another connection has been made with your account."
	ReasonServerFull          = "Server is full."
)

var (
	// ErrMultipleConnections is returned when another handshake for the same
	// user is already kicking its old session or won the registration race.
	ErrMultipleConnections = errors.New("admission: multiple connections for user")

	// ErrServerFull is returned when the session table has no free slot.
	ErrServerFull = errors.New("admission: server full")

	// ErrPeerDisconnected is returned when the connection dropped while
	// admission was suspended.
	ErrPeerDisconnected = errors.New("admission: peer disconnected mid-handshake")

	// ErrNoSessions is returned by NewController without a session manager.
	ErrNoSessions = errors.New("admission: session manager required")
)

// DeniedError is returned when the connecting hook vetoes a login.
type DeniedError struct {
	Reason *DenyReason
}

func (e *DeniedError) Error() string {
	if e.Reason == nil {
		return "admission: connect denied"
	}
	return "admission: connect denied: " + e.Reason.Text
}

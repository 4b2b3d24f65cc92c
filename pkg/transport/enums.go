package transport

// Status is the lifecycle state of a Connection.
type Status int32

const (
	// StatusConnecting is the state of a freshly accepted connection.
	StatusConnecting Status = iota
	// StatusAwaitingApproval is set while the approval gate runs.
	StatusAwaitingApproval
	// StatusConnected marks a connection admitted by the handshake.
	StatusConnected
	// StatusDisconnecting is set once a disconnect has been requested.
	StatusDisconnecting
	// StatusDisconnected is set after the underlying connection closed.
	StatusDisconnected
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting"
	case StatusAwaitingApproval:
		return "AwaitingApproval"
	case StatusConnected:
		return "Connected"
	case StatusDisconnecting:
		return "Disconnecting"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// IsClosing returns true once a disconnect is in progress or complete.
func (s Status) IsClosing() bool {
	return s == StatusDisconnecting || s == StatusDisconnected
}

// frameKind tags each frame on the wire.
type frameKind uint8

const (
	frameData       frameKind = 0x00
	frameDisconnect frameKind = 0x01
)

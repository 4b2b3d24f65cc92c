package handshake

import (
	"errors"
	"fmt"
)

// Client-facing disconnect reasons.
const (
	ReasonAuthRequired        = "Connecting to this server requires authentication"
	ReasonVerifyTokenInvalid  = "Verify token is invalid"
	ReasonMalformedMessage    = "Malformed handshake message."
	ReasonInvalidNonce        = "Invalid starting nonce."
	ReasonTimeout             = "Handshake timed out."
	ReasonInternal            = "Unknown server error occurred during handshake."
	ReasonLoginProblemPrefix  = "There was a problem logging you in. "
	ReasonConnectDeniedPrefix = "Connect denied: "
)

// ReasonWrongServerKey is sent when the sealed secret cannot be opened,
// which usually means the client cached a key from before a server restart.
var ReasonWrongServerKey = DisconnectMessage{
	Reason: "Token decryption failed.\nPlease reconnect to this server from the launcher.",
	Redial: true,
}

var (
	// ErrMalformedMessage is returned when a handshake message cannot be
	// decoded.
	ErrMalformedMessage = errors.New("handshake: malformed message")

	// ErrFieldTooLong is returned when encoding a field over its limit.
	ErrFieldTooLong = errors.New("handshake: field too long")

	// ErrNoServerKey is returned by the client when the server did not send
	// its public key and none is cached.
	ErrNoServerKey = errors.New("handshake: no server public key")

	// ErrMissingDependency is returned by NewServer when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("handshake: missing dependency")

	// ErrUnexpectedReply is returned by the client on an unknown reply
	// discriminator.
	ErrUnexpectedReply = errors.New("handshake: unexpected reply")
)

// Kind classifies handshake failures.
type Kind int

const (
	// KindTransport is a peer that vanished. Nothing is sent.
	KindTransport Kind = iota
	// KindProtocol is a malformed or inconsistent message.
	KindProtocol
	// KindCredential is a rejected token.
	KindCredential
	// KindPolicy is a refusal by configuration or a collaborator.
	KindPolicy
	// KindInternal is an unexpected server fault. The client only sees a
	// generic reason.
	KindInternal
)

// String returns the kind as used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindCredential:
		return "credential"
	case KindPolicy:
		return "policy"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a failed handshake. Reason is the encoded disconnect reason sent
// to the client, empty for KindTransport.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("handshake %s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("handshake %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("handshake %s: %s", e.Kind, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a handshake error, or KindInternal for other
// errors.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return KindInternal
}

// RejectedError is returned by the client when the server disconnects it
// during the handshake.
type RejectedError struct {
	Message DisconnectMessage
}

func (e *RejectedError) Error() string {
	return "handshake: rejected by server: " + e.Message.Reason
}

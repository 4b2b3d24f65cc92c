// Package session holds per-connection security state once a handshake
// admits a peer.
//
// The package provides:
//   - Cipher: XChaCha20-Poly1305 framing with a role-parity nonce counter
//   - Context: the resolved identity, login type and cipher of a connection
//   - Manager: the process-wide registry of live sessions, the
//     pending-disconnect set, display name reservations and teardown waiters
package session

// Role identifies which side of the connection a Cipher belongs to. It
// selects the nonce parity so both directions can share one key.
type Role int

const (
	// RoleUnknown indicates an uninitialized or invalid role.
	RoleUnknown Role = iota

	// RoleServer encrypts with even nonces, starting at 0.
	RoleServer

	// RoleClient encrypts with odd nonces, starting at 1.
	RoleClient
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "Server"
	case RoleClient:
		return "Client"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the role is a defined value.
func (r Role) IsValid() bool {
	return r == RoleServer || r == RoleClient
}

// InitialNonce returns the counter value a fresh Cipher of this role starts
// from.
func (r Role) InitialNonce() uint64 {
	if r == RoleClient {
		return 1
	}
	return 0
}

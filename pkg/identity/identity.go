// Package identity resolves connecting peers to application identities.
//
// Authenticated peers are mapped from their canonical credential public key
// to an account through an external Association. Guests get a validated,
// namespaced display name that is unique among connected sessions and either
// a policy-assigned or a random user ID.
package identity

import (
	"bytes"

	"github.com/google/uuid"
)

// UserID is the stable 128-bit identifier of an account.
type UserID = uuid.UUID

// LoginType records how an identity was established.
type LoginType uint8

const (
	// LoginTypeLoggedIn is a credential-authenticated account.
	LoginTypeLoggedIn LoginType = iota

	// LoginTypeGuest is an unauthenticated peer with a server-generated ID.
	LoginTypeGuest

	// LoginTypeGuestAssigned is an unauthenticated peer whose ID was supplied
	// by a GuestIDAssigner.
	LoginTypeGuestAssigned
)

// String returns a human-readable name for the login type.
func (t LoginType) String() string {
	switch t {
	case LoginTypeLoggedIn:
		return "LoggedIn"
	case LoginTypeGuest:
		return "Guest"
	case LoginTypeGuestAssigned:
		return "GuestAssigned"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the login type is a defined value.
func (t LoginType) IsValid() bool {
	return t <= LoginTypeGuestAssigned
}

// IsGuest returns true for both guest login types.
func (t LoginType) IsGuest() bool {
	return t == LoginTypeGuest || t == LoginTypeGuestAssigned
}

// Identity is a resolved application identity. It is immutable once created;
// accessors return copies of the byte fields.
type Identity struct {
	userID      UserID
	displayName string
	hardwareID  []byte
	publicKey   []byte
}

// New creates an Identity. publicKey is the canonical SPKI DER encoding of
// the account's credential key and is nil for guests.
func New(userID UserID, displayName string, hardwareID, publicKey []byte) Identity {
	return Identity{
		userID:      userID,
		displayName: displayName,
		hardwareID:  bytes.Clone(hardwareID),
		publicKey:   bytes.Clone(publicKey),
	}
}

// UserID returns the account identifier.
func (i Identity) UserID() UserID {
	return i.userID
}

// DisplayName returns the name shown to other players.
func (i Identity) DisplayName() string {
	return i.displayName
}

// HardwareID returns the client-reported hardware ID.
func (i Identity) HardwareID() []byte {
	return bytes.Clone(i.hardwareID)
}

// PublicKey returns the canonical credential public key, or nil for guests.
func (i Identity) PublicKey() []byte {
	return bytes.Clone(i.publicKey)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.userID == uuid.Nil && i.displayName == ""
}

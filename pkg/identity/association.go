package identity

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
)

// AssociationRequest is handed to an Association for an authenticated peer.
type AssociationRequest struct {
	// PublicKey is the canonical SPKI DER encoding of the credential key.
	PublicKey []byte

	// HardwareID is the client-reported hardware ID.
	HardwareID []byte

	// UserName is the username the client asked for.
	UserName string

	// RemoteAddr is the peer's network address.
	RemoteAddr net.Addr
}

// AssociationResult is the outcome of an association lookup.
type AssociationResult struct {
	// Success is true when Identity is populated.
	Success bool

	// Identity is the resolved account.
	Identity Identity

	// ErrorMessage is shown to the user when Success is false.
	ErrorMessage string
}

// Association maps a credential public key to a persistent account.
// It is supplied by the embedding application and may perform I/O.
//
// A returned error is treated as an internal fault; a policy refusal is
// reported through AssociationResult.
type Association interface {
	AssociateByPublicKey(ctx context.Context, req AssociationRequest) (AssociationResult, error)
}

// AssociationFunc adapts a function to the Association interface.
type AssociationFunc func(ctx context.Context, req AssociationRequest) (AssociationResult, error)

// AssociateByPublicKey calls f.
func (f AssociationFunc) AssociateByPublicKey(ctx context.Context, req AssociationRequest) (AssociationResult, error) {
	return f(ctx, req)
}

// GuestIDAssigner optionally supplies a stable user ID for a guest name.
// Returning ok=false falls back to a random ID.
type GuestIDAssigner interface {
	AssignGuestID(ctx context.Context, name string) (id UserID, ok bool, err error)
}

// GuestIDAssignerFunc adapts a function to the GuestIDAssigner interface.
type GuestIDAssignerFunc func(ctx context.Context, name string) (UserID, bool, error)

// AssignGuestID calls f.
func (f GuestIDAssignerFunc) AssignGuestID(ctx context.Context, name string) (UserID, bool, error) {
	return f(ctx, name)
}

// NameRegistry hands out display names that are unique among connected
// sessions. ReserveName tries base, then base_2, base_3, ... and holds the
// first free one until release is called or the name is claimed by a
// registered session.
type NameRegistry interface {
	ReserveName(base string) (name string, release func())
}

// MemoryAssociation is an in-memory Association keyed by canonical public
// key. It is safe for concurrent use.
type MemoryAssociation struct {
	// AutoRegister creates an account for unknown keys using the requested
	// username. When false, unknown keys are refused.
	AutoRegister bool

	mu       sync.RWMutex
	accounts map[string]memoryAccount
}

type memoryAccount struct {
	userID UserID
	name   string
}

// NewMemoryAssociation creates an empty MemoryAssociation.
func NewMemoryAssociation(autoRegister bool) *MemoryAssociation {
	return &MemoryAssociation{
		AutoRegister: autoRegister,
		accounts:     make(map[string]memoryAccount),
	}
}

// Register binds publicKey to an account.
func (m *MemoryAssociation) Register(publicKey []byte, userID UserID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[string(publicKey)] = memoryAccount{userID: userID, name: name}
}

// Len returns the number of known accounts.
func (m *MemoryAssociation) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// AssociateByPublicKey implements Association.
func (m *MemoryAssociation) AssociateByPublicKey(ctx context.Context, req AssociationRequest) (AssociationResult, error) {
	if err := ctx.Err(); err != nil {
		return AssociationResult{}, err
	}

	key := string(req.PublicKey)

	m.mu.RLock()
	acct, ok := m.accounts[key]
	m.mu.RUnlock()

	if !ok {
		if !m.AutoRegister {
			return AssociationResult{ErrorMessage: "No account is registered for this key."}, nil
		}
		if err := ValidateUserName(req.UserName); err != nil {
			return AssociationResult{ErrorMessage: err.(*UserNameError).Reason.String() + "."}, nil
		}

		m.mu.Lock()
		// Another login with the same key may have registered meanwhile.
		if acct, ok = m.accounts[key]; !ok {
			acct = memoryAccount{userID: uuid.New(), name: req.UserName}
			m.accounts[key] = acct
		}
		m.mu.Unlock()
	}

	return AssociationResult{
		Success:  true,
		Identity: New(acct.userID, acct.name, req.HardwareID, req.PublicKey),
	}, nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Association resolves authenticated peers. Required only when
	// authenticated logins are accepted.
	Association Association

	// GuestIDs optionally assigns stable IDs to guest names.
	GuestIDs GuestIDAssigner

	// Names keeps guest display names unique. Required.
	Names NameRegistry

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver turns a public key or a guest username into an Identity.
type Resolver struct {
	association Association
	guestIDs    GuestIDAssigner
	names       NameRegistry
	log         logging.LeveledLogger
}

// NewResolver creates a Resolver.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	if config.Names == nil {
		return nil, ErrNoNameRegistry
	}

	r := &Resolver{
		association: config.Association,
		guestIDs:    config.GuestIDs,
		names:       config.Names,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("identity")
	}
	return r, nil
}

// Resolution is a resolved identity plus any display name reservation
// taken while resolving it. Release must be called once the caller is done
// with the resolution, whether or not the session was registered.
type Resolution struct {
	Identity  Identity
	LoginType LoginType

	release func()
}

// Release drops the display name reservation, if any. Safe to call more
// than once.
func (r *Resolution) Release() {
	if r == nil || r.release == nil {
		return
	}
	r.release()
	r.release = nil
}

// ResolveAuthenticated maps a validated credential key to an account through
// the configured Association. A refusal is returned as *RejectedError.
func (r *Resolver) ResolveAuthenticated(ctx context.Context, req AssociationRequest) (*Resolution, error) {
	if r.association == nil {
		return nil, ErrNoAssociation
	}

	res, err := r.association.AssociateByPublicKey(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("associate public key: %w", err)
	}
	if !res.Success || res.Identity.IsZero() {
		if r.log != nil {
			r.log.Debugf("%v: association refused: %s", req.RemoteAddr, res.ErrorMessage)
		}
		return nil, &RejectedError{Message: res.ErrorMessage}
	}

	return &Resolution{Identity: res.Identity, LoginType: LoginTypeLoggedIn}, nil
}

// GuestRequest describes an unauthenticated peer.
type GuestRequest struct {
	// UserName is the username the client asked for.
	UserName string

	// HardwareID is the client-reported hardware ID.
	HardwareID []byte

	// Prefix is the namespace applied before uniqueness checks, see
	// GuestPrefix.
	Prefix string

	// RemoteAddr is the peer's network address, for logging.
	RemoteAddr net.Addr
}

// ResolveGuest validates the requested username, reserves a unique display
// name and assigns a user ID. An invalid username is returned as
// *UserNameError.
func (r *Resolver) ResolveGuest(ctx context.Context, req GuestRequest) (*Resolution, error) {
	if err := ValidateUserName(req.UserName); err != nil {
		return nil, err
	}

	name, release := r.names.ReserveName(req.Prefix + req.UserName)
	if r.log != nil {
		r.log.Tracef("%v: assigned name %s", req.RemoteAddr, name)
	}

	loginType := LoginTypeGuest
	userID := uuid.Nil

	if r.guestIDs != nil {
		id, ok, err := r.guestIDs.AssignGuestID(ctx, name)
		if err != nil {
			release()
			return nil, fmt.Errorf("assign guest id: %w", err)
		}
		if ok {
			userID = id
			loginType = LoginTypeGuestAssigned
		}
	}
	if userID == uuid.Nil {
		userID = uuid.New()
		loginType = LoginTypeGuest
	}

	return &Resolution{
		Identity:  New(userID, name, req.HardwareID, nil),
		LoginType: loginType,
		release:   release,
	}, nil
}

// GuestPrefix returns the display name namespace for a guest. No prefix is
// used when authentication is disabled server-wide; otherwise local
// connections get PrefixLocal and everyone else PrefixGuest.
func GuestPrefix(authDisabled, local bool) string {
	switch {
	case authDisabled:
		return ""
	case local:
		return PrefixLocal
	default:
		return PrefixGuest
	}
}

// IsRejected reports whether err is an association refusal and returns its
// client-facing message.
func IsRejected(err error) (string, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Message, true
	}
	return "", false
}

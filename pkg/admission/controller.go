package admission

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/pion/logging"
)

// ConnectingEvent describes a resolved login about to be admitted.
type ConnectingEvent struct {
	ConnID     uint64
	RemoteAddr net.Addr
	Identity   identity.Identity
	LoginType  identity.LoginType
}

// ConnectingHook may veto a login after identity resolution. A nil
// DenyReason lets the login proceed. A returned error is an internal fault.
type ConnectingHook interface {
	OnConnecting(ctx context.Context, ev ConnectingEvent) (*DenyReason, error)
}

// ConnectingFunc adapts a function to the ConnectingHook interface.
type ConnectingFunc func(ctx context.Context, ev ConnectingEvent) (*DenyReason, error)

// OnConnecting calls f.
func (f ConnectingFunc) OnConnecting(ctx context.Context, ev ConnectingEvent) (*DenyReason, error) {
	return f(ctx, ev)
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Sessions is the process-wide session registry. Required.
	Sessions *session.Manager

	// Connecting is consulted before deduplication. Optional.
	Connecting ConnectingHook

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Controller admits resolved identities into the session registry.
// It is safe for concurrent use by many handshakes.
type Controller struct {
	sessions   *session.Manager
	connecting ConnectingHook
	log        logging.LeveledLogger
}

// NewController creates a Controller.
func NewController(config ControllerConfig) (*Controller, error) {
	if config.Sessions == nil {
		return nil, ErrNoSessions
	}
	c := &Controller{
		sessions:   config.Sessions,
		connecting: config.Connecting,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("admission")
	}
	return c, nil
}

// AdmitRequest is the input to Admit.
type AdmitRequest struct {
	Conn      transport.Connection
	Identity  identity.Identity
	LoginType identity.LoginType
	Cipher    *session.Cipher

	// Send delivers the login success message on the registered session.
	// Required.
	Send func(ctx context.Context, sess *session.Context) error
}

// Admit runs the connecting hook, kicks any live session of the same user
// and waits for its teardown, re-checks that the peer is still there, then
// registers the session, sends the success message and marks the
// connection Connected.
//
// Errors: *DeniedError, ErrMultipleConnections, ErrPeerDisconnected, the
// context's error, or a wrapped internal fault.
func (c *Controller) Admit(ctx context.Context, req AdmitRequest) (*session.Context, error) {
	if req.Conn == nil || req.Send == nil {
		return nil, session.ErrInvalidContext
	}
	uid := req.Identity.UserID()

	if c.connecting != nil {
		deny, err := c.connecting.OnConnecting(ctx, ConnectingEvent{
			ConnID:     req.Conn.ID(),
			RemoteAddr: req.Conn.RemoteAddr(),
			Identity:   req.Identity,
			LoginType:  req.LoginType,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting hook: %w", err)
		}
		if deny != nil {
			return nil, &DeniedError{Reason: deny}
		}
	}

	if err := c.kickExisting(ctx, req.Conn, uid); err != nil {
		return nil, err
	}

	if closing(req.Conn) {
		if c.log != nil {
			c.log.Infof("%s (%s/%s) disconnected during handshake",
				req.Conn.RemoteAddr(), uid, req.Identity.DisplayName())
		}
		return nil, ErrPeerDisconnected
	}

	sess, err := session.NewContext(session.ContextConfig{
		Connection: req.Conn,
		Identity:   req.Identity,
		LoginType:  req.LoginType,
		Cipher:     req.Cipher,
	})
	if err != nil {
		return nil, err
	}

	if err := c.sessions.Register(sess); err != nil {
		switch {
		case errors.Is(err, session.ErrUserConnected):
			return nil, ErrMultipleConnections
		case errors.Is(err, session.ErrSessionTableFull):
			return nil, ErrServerFull
		}
		return nil, fmt.Errorf("register session: %w", err)
	}

	if err := req.Send(ctx, sess); err != nil {
		c.sessions.Unregister(sess.ConnID())
		if closing(req.Conn) {
			return nil, ErrPeerDisconnected
		}
		return nil, fmt.Errorf("send login success: %w", err)
	}

	req.Conn.SetStatus(transport.StatusConnected)
	return sess, nil
}

// kickExisting disconnects the live session of uid, if any, and waits for
// its teardown. uid stays in the pending-disconnect set for the duration.
func (c *Controller) kickExisting(ctx context.Context, conn transport.Connection, uid identity.UserID) error {
	existing, err := c.sessions.BeginPendingDisconnect(uid)
	if err != nil {
		return ErrMultipleConnections
	}
	if existing == nil {
		return nil
	}
	defer c.sessions.EndPendingDisconnect(uid)

	if c.log != nil {
		c.log.Debugf("%s: user %s already connected on conn %d, disconnecting", conn.RemoteAddr(), uid, existing.ConnID())
	}

	gone := c.sessions.AwaitDisconnect(existing.ConnID())
	existing.Connection().Disconnect(ReasonTakeover)

	select {
	case <-gone:
		return nil
	case <-conn.Done():
		return ErrPeerDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closing(conn transport.Connection) bool {
	select {
	case <-conn.Done():
		return true
	default:
	}
	return conn.Status().IsClosing()
}

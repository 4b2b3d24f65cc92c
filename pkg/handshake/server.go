// Package handshake implements the login handshake.
//
// Message flow:
//
//	Client                                Server
//	  |------ LoginStart ------------------>|
//	  |                                     |  (guest: resolve name)
//	  |<----- [1] LoginSuccess -------------|
//
//	  |------ LoginStart ------------------>|
//	  |<----- [0] EncryptionRequest --------|  (verify token, server key)
//	  |------ EncryptionResponse ---------->|  (sealed secret, token)
//	  |                                     |  (validate token, resolve account)
//	  |<----- LoginSuccess (encrypted) -----|
//
// The Server runs one handshake per connection. Every failure becomes an
// *Error whose Kind decides whether and what the client is told.
package handshake

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/netauth/pkg/admission"
	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/metrics"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/pion/logging"
)

// Flow labels.
const (
	flowAuth  = "auth"
	flowGuest = "guest"
)

// ReasonNotApproved is sent when an Approver refuses without a reason.
const ReasonNotApproved = "Connection was not approved."

// Server runs server-side handshakes. It is safe for concurrent use; the only
// shared state lives in the session manager behind the admission controller.
type Server struct {
	keys       *crypto.SealKeyPair
	validator  *credential.Validator
	resolver   *identity.Resolver
	admission  *admission.Controller
	approver   admission.Approver
	auth       AuthMode
	allowLocal bool
	timeout    time.Duration
	metrics    *metrics.Handshake
	log        logging.LeveledLogger
}

// NewServer creates a Server.
func NewServer(config ServerConfig) (*Server, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	s := &Server{
		keys:       config.Keys,
		validator:  config.Validator,
		resolver:   config.Resolver,
		admission:  config.Admission,
		approver:   config.Approver,
		auth:       config.Auth,
		allowLocal: config.AllowLocal,
		timeout:    config.HandshakeTimeout,
		metrics:    config.Metrics,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("handshake")
	}
	return s, nil
}

// PublicKey returns the server's sealing public key.
func (s *Server) PublicKey() []byte {
	return s.keys.PublicKey()
}

// Auth returns the configured authentication mode.
func (s *Server) Auth() AuthMode {
	return s.auth
}

// Handler adapts the server to a transport handler. Admitted sessions are
// passed to next, which may be nil.
func (s *Server) Handler(next func(*session.Context)) transport.ConnHandler {
	return func(conn *transport.Conn) {
		sess, err := s.HandleConnection(context.Background(), conn)
		if err != nil || next == nil {
			return
		}
		next(sess)
	}
}

// HandleConnection runs one handshake on conn and returns the admitted
// session. On failure the connection has already been disconnected with
// the appropriate reason and the returned error is an *Error.
func (s *Server) HandleConnection(ctx context.Context, conn transport.Connection) (sess *session.Context, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			sess, err = nil, &Error{Kind: KindInternal, Err: fmt.Errorf("panic: %v", r)}
		}
		outcome := metrics.OutcomeAdmitted
		if err != nil {
			he := s.reject(conn, err)
			outcome = he.Kind.String()
			err = he
		}
		s.metrics.Finished(outcome, time.Since(start))
	}()

	return s.handshake(ctx, conn)
}

func (s *Server) handshake(ctx context.Context, conn transport.Connection) (*session.Context, error) {
	remote := conn.RemoteAddr()
	if s.log != nil {
		s.log.Tracef("%s: starting handshake", remote)
	}

	conn.SetStatus(transport.StatusAwaitingApproval)
	if s.approver != nil {
		res, err := s.approver.Approve(ctx, admission.ApprovalRequest{ConnID: conn.ID(), RemoteAddr: remote})
		if err != nil {
			return nil, fmt.Errorf("approve connection: %w", err)
		}
		if !res.Approved {
			return nil, &Error{Kind: KindPolicy, Reason: approvalReason(res.Deny)}
		}
	}

	data, err := s.receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	login, err := DecodeLoginStart(data)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Reason: ReasonMalformedMessage, Err: err}
	}

	isLocal := s.allowLocal && transport.IsLoopback(remote)
	if s.log != nil {
		s.log.Tracef("%s: login start: canAuth=%t needKey=%t encrypt=%t username=%s local=%t",
			remote, login.CanAuthenticate, login.NeedsServerPublicKey, login.WantsEncryption, login.UserName, isLocal)
	}

	if s.auth == AuthRequired && !isLocal && !login.CanAuthenticate {
		return nil, &Error{Kind: KindPolicy, Reason: ReasonAuthRequired}
	}

	var (
		res    *identity.Resolution
		cipher *session.Cipher
		pad    = true
	)
	if login.CanAuthenticate && s.auth != AuthDisabled {
		s.metrics.Started(flowAuth)
		res, cipher, err = s.authenticate(ctx, conn, login)
		pad = false
	} else {
		s.metrics.Started(flowGuest)
		res, err = s.resolveGuest(ctx, conn, login, isLocal)
	}
	if err != nil {
		return nil, err
	}
	defer res.Release()

	if s.log != nil {
		s.log.Tracef("%s: login type %s, raising connecting event", remote, res.LoginType)
	}

	sess, err := s.admission.Admit(ctx, admission.AdmitRequest{
		Conn:      conn,
		Identity:  res.Identity,
		LoginType: res.LoginType,
		Cipher:    cipher,
		Send: func(ctx context.Context, sess *session.Context) error {
			msg := &LoginSuccess{
				UserID:      sess.UserID(),
				DisplayName: sess.Identity().DisplayName(),
				LoginType:   sess.LoginType(),
			}
			payload, err := msg.Encode()
			if err != nil {
				return err
			}
			if pad {
				payload = withReply(replyLoginSuccess, payload)
			}
			return sess.Send(ctx, payload)
		},
	})
	if err != nil {
		if cipher != nil {
			cipher.Zeroize()
		}
		return nil, s.admissionError(ctx, err)
	}

	if s.log != nil {
		s.log.Infof("approved %s with username %s user ID %s into the server",
			remote, res.Identity.DisplayName(), res.Identity.UserID())
	}
	return sess, nil
}

// authenticate runs the key exchange and token validation and resolves the
// account behind the token's key.
func (s *Server) authenticate(ctx context.Context, conn transport.Connection, login *LoginStart) (res *identity.Resolution, cipher *session.Cipher, err error) {
	defer func() {
		if err != nil && cipher != nil {
			cipher.Zeroize()
			cipher = nil
		}
	}()

	req := &EncryptionRequest{}
	if _, err := rand.Read(req.VerifyToken[:]); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}
	if login.NeedsServerPublicKey {
		req.PublicKey = s.keys.PublicKey()
	}
	payload, err := req.Encode()
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Send(ctx, withReply(replyEncryptionRequest, payload)); err != nil {
		return nil, nil, transportError(ctx, err)
	}

	data, err := s.receive(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	resp, err := DecodeEncryptionResponse(data)
	if err != nil {
		return nil, nil, &Error{Kind: KindProtocol, Reason: ReasonMalformedMessage, Err: err}
	}

	plain, err := s.keys.Open(resp.SealedData)
	if err == nil && len(plain) != SealedPayloadSize {
		err = fmt.Errorf("sealed payload is %d bytes", len(plain))
	}
	if err != nil {
		return nil, nil, &Error{Kind: KindProtocol, Reason: ReasonWrongServerKey.Encode(), Err: err}
	}
	defer clear(plain)

	secret, check := plain[:SharedSecretSize], plain[SharedSecretSize:]
	if subtle.ConstantTimeCompare(check, req.VerifyToken[:]) != 1 {
		return nil, nil, &Error{Kind: KindProtocol, Reason: ReasonVerifyTokenInvalid}
	}

	if login.WantsEncryption {
		if resp.StartingNonce&1 != 0 || resp.StartingNonce > MaxStartingNonce {
			return nil, nil, &Error{Kind: KindProtocol, Reason: ReasonInvalidNonce}
		}
		cipher, err = session.NewCipher(secret, session.RoleServer)
		if err != nil {
			return nil, nil, fmt.Errorf("transport cipher: %w", err)
		}
		cipher.SetNonce(resp.StartingNonce)
	}

	result, err := s.validator.Validate(credential.Request{
		Token:        resp.Token,
		PublicKeyPEM: resp.UserPublicKey,
		SharedSecret: secret,
	})
	if err != nil {
		return nil, cipher, &Error{Kind: KindCredential, Reason: credential.ReasonOf(err).Message(), Err: err}
	}
	if s.log != nil {
		s.log.Tracef("%s: token appears valid", conn.RemoteAddr())
	}

	res, err = s.resolver.ResolveAuthenticated(ctx, identity.AssociationRequest{
		PublicKey:  result.PublicKey,
		HardwareID: login.HardwareID,
		UserName:   login.UserName,
		RemoteAddr: conn.RemoteAddr(),
	})
	if err != nil {
		if msg, ok := identity.IsRejected(err); ok {
			return nil, cipher, &Error{Kind: KindPolicy, Reason: ReasonLoginProblemPrefix + msg, Err: err}
		}
		return nil, cipher, fmt.Errorf("resolve account: %w", err)
	}
	return res, cipher, nil
}

func (s *Server) resolveGuest(ctx context.Context, conn transport.Connection, login *LoginStart, isLocal bool) (*identity.Resolution, error) {
	res, err := s.resolver.ResolveGuest(ctx, identity.GuestRequest{
		UserName:   login.UserName,
		HardwareID: login.HardwareID,
		Prefix:     identity.GuestPrefix(s.auth == AuthDisabled, isLocal),
		RemoteAddr: conn.RemoteAddr(),
	})
	if err != nil {
		var nameErr *identity.UserNameError
		if errors.As(err, &nameErr) {
			return nil, &Error{Kind: KindPolicy, Reason: fmt.Sprintf("Username is invalid (%s).", nameErr.Reason), Err: err}
		}
		return nil, fmt.Errorf("resolve guest: %w", err)
	}
	return res, nil
}

func (s *Server) receive(ctx context.Context, conn transport.Connection) ([]byte, error) {
	data, err := conn.Receive(ctx)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return data, nil
}

// transportError classifies a send or receive failure. A handshake that ran
// out of time is told so; anything else means the peer is gone.
func transportError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindProtocol, Reason: ReasonTimeout, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

func (s *Server) admissionError(ctx context.Context, err error) error {
	var denied *admission.DeniedError
	switch {
	case errors.As(err, &denied):
		msg := DisconnectMessage{Reason: ReasonConnectDeniedPrefix}
		if denied.Reason != nil {
			msg.Reason += denied.Reason.Text
			msg.Values = denied.Reason.Properties
		}
		return &Error{Kind: KindPolicy, Reason: msg.Encode(), Err: err}
	case errors.Is(err, admission.ErrMultipleConnections):
		return &Error{Kind: KindPolicy, Reason: admission.ReasonMultipleConnections, Err: err}
	case errors.Is(err, admission.ErrServerFull):
		return &Error{Kind: KindPolicy, Reason: admission.ReasonServerFull, Err: err}
	case errors.Is(err, admission.ErrPeerDisconnected):
		return &Error{Kind: KindTransport, Err: err}
	case ctx.Err() != nil:
		return transportError(ctx, err)
	default:
		return err
	}
}

// reject disconnects conn according to the failure kind and logs it.
func (s *Server) reject(conn transport.Connection, err error) *Error {
	var he *Error
	if !errors.As(err, &he) {
		he = &Error{Kind: KindInternal, Err: err}
	}

	remote := conn.RemoteAddr()
	switch he.Kind {
	case KindTransport:
		if s.log != nil {
			s.log.Debugf("%s: peer disconnected while handshake was in progress: %v", remote, he.Err)
		}
		return he
	case KindInternal:
		he.Reason = ReasonInternal
		if s.log != nil {
			s.log.Errorf("%s: error during handshake: %v", remote, he.Err)
		}
	default:
		if s.log != nil {
			s.log.Infof("%s: handshake rejected (%s): %s", remote, he.Kind, he.Reason)
		}
	}
	conn.Disconnect(he.Reason)
	return he
}

func approvalReason(deny *admission.DenyReason) string {
	if deny == nil || deny.Text == "" {
		return ReasonNotApproved
	}
	return DisconnectMessage{Reason: deny.Text, Values: deny.Properties}.Encode()
}

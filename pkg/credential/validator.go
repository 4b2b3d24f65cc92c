package credential

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"github.com/backkem/netauth/pkg/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pion/logging"
)

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// ServerPublicKey is the server's sealing public key. Required.
	ServerPublicKey []byte

	// RelaxAudience skips the audience and auth hash checks. Only for
	// development tooling.
	RelaxAudience bool

	// Leeway is the clock skew allowed on exp and nbf.
	// Default: 0
	Leeway time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validator checks tokens presented during an authenticated login.
// It is safe for concurrent use.
type Validator struct {
	serverKey     []byte
	audience      string
	relaxAudience bool
	parser        *jwt.Parser
	log           logging.LeveledLogger
}

// NewValidator creates a Validator.
func NewValidator(config ValidatorConfig) (*Validator, error) {
	if len(config.ServerPublicKey) != crypto.SealKeySize {
		return nil, ErrInvalidServerKey
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}
	if config.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(config.Now))
	}

	v := &Validator{
		serverKey:     append([]byte(nil), config.ServerPublicKey...),
		audience:      crypto.Base64(config.ServerPublicKey),
		relaxAudience: config.RelaxAudience,
		parser:        jwt.NewParser(opts...),
	}
	if config.LoggerFactory != nil {
		v.log = config.LoggerFactory.NewLogger("credential")
	}
	return v, nil
}

// Audience returns the audience value tokens must carry for this server.
func (v *Validator) Audience() string {
	return v.audience
}

// Request is the input to Validate.
type Request struct {
	// Token is the compact JWS presented by the client.
	Token string

	// PublicKeyPEM is the client's asserted P-256 public key.
	PublicKeyPEM string

	// SharedSecret is the secret the client sealed to the server.
	SharedSecret []byte
}

// Result is a validated credential.
type Result struct {
	Claims Claims

	// PublicKey is the canonical SPKI DER encoding of the asserted key.
	PublicKey []byte
}

// Validate checks, in order: the asserted public key, the ES256 signature,
// the exp and nbf bounds, the claims payload and, unless relaxed, the
// audience and auth hash bindings. The first failure is returned as *Error.
func (v *Validator) Validate(req Request) (*Result, error) {
	pub, err := crypto.ParsePublicKeyPEM(req.PublicKeyPEM)
	if err != nil {
		return nil, &Error{Reason: ReasonBadPublicKey, Err: err}
	}
	canonical, err := crypto.CanonicalPublicKey(pub)
	if err != nil {
		return nil, &Error{Reason: ReasonBadPublicKey, Err: err}
	}

	claims := jwt.MapClaims{}
	_, err = v.parser.ParseWithClaims(req.Token, claims, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		reason := classify(err)
		if reason == ReasonMalformed && v.log != nil {
			v.log.Warnf("misc JWT error: %v", err)
		}
		return nil, &Error{Reason: reason, Err: err}
	}

	if len(claims) == 0 {
		return nil, &Error{Reason: ReasonNoClaims}
	}
	c := Claims{raw: claims}

	if !v.relaxAudience {
		if err := v.checkBinding(c, req.SharedSecret); err != nil {
			return nil, err
		}
	}

	return &Result{Claims: c, PublicKey: canonical}, nil
}

func (v *Validator) checkBinding(c Claims, sharedSecret []byte) error {
	aud, ok := c.Audience()
	if !ok {
		return &Error{Reason: ReasonMissingAudience}
	}
	if aud != v.audience {
		return &Error{Reason: ReasonWrongAudience}
	}

	hash, ok := c.AuthHash()
	if !ok {
		return &Error{Reason: ReasonMissingAuthHash}
	}
	want := crypto.AuthHashString(sharedSecret, v.serverKey)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(want)) != 1 {
		return &Error{Reason: ReasonWrongAuthHash}
	}
	return nil
}

// classify maps a jwt parse error to a Reason. The parser verifies the
// signature before the time claims.
func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ReasonNotYetValid
	case errors.Is(err, jwt.ErrTokenMalformed) && isPayloadTypeError(err):
		return ReasonBadClaims
	default:
		return ReasonMalformed
	}
}

// isPayloadTypeError reports a payload that is valid JSON but not an object.
func isPayloadTypeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

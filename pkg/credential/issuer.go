package credential

import (
	"time"

	"github.com/backkem/netauth/pkg/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultValidity is how far nbf and exp are placed from the issue time.
const DefaultValidity = 5 * time.Minute

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	// Key signs the tokens. Required.
	Key *crypto.P256KeyPair

	// Validity is the window on either side of the issue time.
	// Default: DefaultValidity
	Validity time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Issuer mints ES256 login tokens. It backs the CLI and tests; production
// tokens come from an external auth service.
type Issuer struct {
	key      *crypto.P256KeyPair
	validity time.Duration
	now      func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(config IssuerConfig) (*Issuer, error) {
	if config.Key == nil {
		return nil, ErrNoSigningKey
	}
	if config.Validity <= 0 {
		config.Validity = DefaultValidity
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Issuer{key: config.Key, validity: config.Validity, now: config.Now}, nil
}

// PublicKeyPEM returns the PEM the client presents alongside its tokens.
func (i *Issuer) PublicKeyPEM() (string, error) {
	return i.key.PublicKeyPEM()
}

// IssueRequest describes one token.
type IssueRequest struct {
	// UserName is placed in preferredUserName.
	UserName string

	// ServerPublicKey binds the token to a server through aud and, with
	// SharedSecret, authhash. Nil omits both claims.
	ServerPublicKey []byte

	// SharedSecret is the secret sealed to the server for this login.
	// Nil omits authhash.
	SharedSecret []byte

	// ID is the jti claim. Default: a random UUID.
	ID string

	// Extra claims are copied into the payload last.
	Extra map[string]any
}

// Issue signs a token for req.
func (i *Issuer) Issue(req IssueRequest) (string, error) {
	now := i.now()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	claims := jwt.MapClaims{
		ClaimIssuedAt:  jwt.NewNumericDate(now),
		ClaimNotBefore: jwt.NewNumericDate(now.Add(-i.validity)),
		ClaimExpiry:    jwt.NewNumericDate(now.Add(i.validity)),
		ClaimID:        id,
	}
	if req.UserName != "" {
		claims[ClaimPreferredUserName] = req.UserName
	}
	if req.ServerPublicKey != nil {
		claims[ClaimAudience] = crypto.Base64(req.ServerPublicKey)
		if req.SharedSecret != nil {
			claims[ClaimAuthHash] = crypto.AuthHashString(req.SharedSecret, req.ServerPublicKey)
		}
	}
	for k, v := range req.Extra {
		claims[k] = v
	}

	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(i.key.Signer())
}

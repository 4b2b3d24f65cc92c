// Package credential validates and issues the ES256 tokens clients present
// during an authenticated login.
//
// A token is bound to one server instance through two claims: "aud" carries
// the server's sealing public key (standard base64) and "authhash" carries
// base64url(SHA-256(shared_secret || server_public_key)) without padding,
// tying the token to the key exchange it was presented in.
package credential

import (
	"maps"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names.
const (
	ClaimAudience          = "aud"
	ClaimAuthHash          = "authhash"
	ClaimPreferredUserName = "preferredUserName"
	ClaimID                = "jti"
	ClaimExpiry            = "exp"
	ClaimNotBefore         = "nbf"
	ClaimIssuedAt          = "iat"
)

// Claims is the validated payload of a token.
type Claims struct {
	raw jwt.MapClaims
}

func (c Claims) str(name string) (string, bool) {
	v, ok := c.raw[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// PreferredUserName returns the username the client asked for.
func (c Claims) PreferredUserName() string {
	s, _ := c.str(ClaimPreferredUserName)
	return s
}

// Audience returns the audience claim. A single-element array is accepted.
func (c Claims) Audience() (string, bool) {
	if _, ok := c.raw[ClaimAudience]; !ok {
		return "", false
	}
	aud, err := c.raw.GetAudience()
	if err != nil || len(aud) != 1 {
		return "", true
	}
	return aud[0], true
}

// AuthHash returns the auth hash claim.
func (c Claims) AuthHash() (string, bool) {
	if _, ok := c.raw[ClaimAuthHash]; !ok {
		return "", false
	}
	s, _ := c.str(ClaimAuthHash)
	return s, true
}

// ID returns the token ID.
func (c Claims) ID() string {
	s, _ := c.str(ClaimID)
	return s
}

// Get returns a raw claim value.
func (c Claims) Get(name string) (any, bool) {
	v, ok := c.raw[name]
	return v, ok
}

// Map returns a copy of all claims.
func (c Claims) Map() map[string]any {
	return maps.Clone(map[string]any(c.raw))
}

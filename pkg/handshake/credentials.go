package handshake

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/backkem/netauth/pkg/credential"
)

// Credential is what an authenticating client presents.
type Credential struct {
	// Token is the signed login token.
	Token string

	// PublicKeyPEM is the key the token was signed with.
	PublicKeyPEM string

	// SharedSecret is the secret the token's auth hash was computed over.
	// Nil lets the client pick a random one, which only works against
	// servers that relax the audience check.
	SharedSecret []byte
}

// CredentialSource supplies a credential for a login to the server with
// the given sealing public key.
type CredentialSource interface {
	Credential(ctx context.Context, serverPublicKey []byte) (*Credential, error)
}

// CredentialFunc adapts a function to the CredentialSource interface.
type CredentialFunc func(ctx context.Context, serverPublicKey []byte) (*Credential, error)

// Credential calls f.
func (f CredentialFunc) Credential(ctx context.Context, serverPublicKey []byte) (*Credential, error) {
	return f(ctx, serverPublicKey)
}

// StaticCredential returns the same credential for every login, as handed
// over by a launcher.
func StaticCredential(c Credential) CredentialSource {
	return CredentialFunc(func(context.Context, []byte) (*Credential, error) {
		out := c
		return &out, nil
	})
}

// IssuerCredential mints a fresh token bound to the server and a fresh
// shared secret for every login.
func IssuerCredential(issuer *credential.Issuer, userName string) CredentialSource {
	return CredentialFunc(func(_ context.Context, serverPublicKey []byte) (*Credential, error) {
		secret := make([]byte, SharedSecretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		token, err := issuer.Issue(credential.IssueRequest{
			UserName:        userName,
			ServerPublicKey: serverPublicKey,
			SharedSecret:    secret,
		})
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		pem, err := issuer.PublicKeyPEM()
		if err != nil {
			return nil, err
		}
		return &Credential{Token: token, PublicKeyPEM: pem, SharedSecret: secret}, nil
	})
}

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// PEM block types for user credential keys.
const (
	PEMTypePublicKey  = "PUBLIC KEY"
	PEMTypePrivateKey = "PRIVATE KEY"
	PEMTypeECPrivate  = "EC PRIVATE KEY"
)

// P-256 key errors.
var (
	ErrNoPEMBlock     = errors.New("p256: no PEM block found")
	ErrNotP256        = errors.New("p256: key is not an ECDSA P-256 key")
	ErrUnexpectedType = errors.New("p256: unexpected PEM block type")
)

// P256KeyPair is an ECDSA P-256 key pair. Users sign their credentials with
// it; the server only ever sees the public half.
type P256KeyPair struct {
	private *ecdsa.PrivateKey
}

// P256GenerateKeyPair generates a new P-256 key pair.
func P256GenerateKeyPair() (*P256KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return &P256KeyPair{private: priv}, nil
}

// Signer returns the private key for signing.
func (kp *P256KeyPair) Signer() *ecdsa.PrivateKey {
	return kp.private
}

// Public returns the public key.
func (kp *P256KeyPair) Public() *ecdsa.PublicKey {
	return &kp.private.PublicKey
}

// PublicKeyPEM returns the public key as a PKIX "PUBLIC KEY" PEM string.
func (kp *P256KeyPair) PublicKeyPEM() (string, error) {
	return MarshalPublicKeyPEM(&kp.private.PublicKey)
}

// PrivateKeyPEM returns the private key as a PKCS#8 "PRIVATE KEY" PEM string.
func (kp *P256KeyPair) PrivateKeyPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.private)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMTypePrivateKey, Bytes: der})), nil
}

// ParsePrivateKeyPEM parses a PKCS#8 or SEC 1 encoded P-256 private key.
func ParsePrivateKeyPEM(s string) (*P256KeyPair, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(s)))
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	var key any
	var err error
	switch block.Type {
	case PEMTypePrivateKey:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case PEMTypeECPrivate:
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrUnexpectedType
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok || priv.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return &P256KeyPair{private: priv}, nil
}

// MarshalPublicKeyPEM encodes a P-256 public key as PKIX PEM.
func MarshalPublicKeyPEM(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMTypePublicKey, Bytes: der})), nil
}

// ParsePublicKeyPEM parses a PKIX "PUBLIC KEY" PEM block holding a P-256 key.
func ParsePublicKeyPEM(s string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(s)))
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	if block.Type != PEMTypePublicKey {
		return nil, ErrUnexpectedType
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return pub, nil
}

// CanonicalPublicKey returns the DER SubjectPublicKeyInfo encoding of pub.
//
// Two PEM strings that differ only cosmetically (line wrapping, headers,
// whitespace) produce identical canonical bytes, so this is the form used
// to look up accounts.
func CanonicalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return der, nil
}

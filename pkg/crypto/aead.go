package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD constants for XChaCha20-Poly1305.
const (
	// SymmetricKeySize is the transport key length (256 bits).
	SymmetricKeySize = chacha20poly1305.KeySize

	// TagSize is the Poly1305 authentication tag length.
	TagSize = chacha20poly1305.Overhead
)

// AEAD errors.
var (
	ErrInvalidKeySize = errors.New("aead: invalid key size, must be 32 bytes")
	ErrAuthFailed     = errors.New("aead: authentication failed")
)

// NewAEAD creates an XChaCha20-Poly1305 instance for a 32-byte key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	return aead, nil
}

// AEADEncrypt seals plaintext with the counter-derived nonce and no
// additional data, appending ciphertext || tag to dst.
func AEADEncrypt(aead cipher.AEAD, dst []byte, counter uint64, plaintext []byte) []byte {
	return aead.Seal(dst, BuildNonce(counter), plaintext, nil)
}

// AEADDecrypt opens ciphertext || tag produced by AEADEncrypt.
func AEADDecrypt(aead cipher.AEAD, counter uint64, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, ErrAuthFailed
	}
	plaintext, err := aead.Open(nil, BuildNonce(counter), ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// GenerateSymmetricKey returns a fresh random transport key.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

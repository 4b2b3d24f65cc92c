package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Sealed box constants. The layout is compatible with libsodium's
// crypto_box_seal: ephemeral public key || box(plaintext).
const (
	// SealKeySize is the size of X25519 public and private keys.
	SealKeySize = 32

	// SealOverhead is the number of bytes a sealed box adds to its plaintext.
	SealOverhead = box.AnonymousOverhead
)

// Sealed box errors.
var (
	// ErrOpenFailed is returned when a sealed box cannot be opened. This is
	// the expected outcome when the sender used a stale public key.
	ErrOpenFailed = errors.New("crypto: sealed box open failed")

	// ErrInvalidSealKey is returned for keys of the wrong size.
	ErrInvalidSealKey = errors.New("crypto: invalid sealing key size")
)

// SealKeyPair is a long-lived X25519 key pair used to receive sealed boxes.
// It is read-only after generation and safe to share between goroutines.
type SealKeyPair struct {
	public  [SealKeySize]byte
	private [SealKeySize]byte
}

// GenerateSealKeyPair generates a fresh sealing key pair.
func GenerateSealKeyPair() (*SealKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate sealing key: %w", err)
	}
	return &SealKeyPair{public: *pub, private: *priv}, nil
}

// SealKeyPairFromBytes rebuilds a key pair from its raw halves.
func SealKeyPairFromBytes(publicKey, privateKey []byte) (*SealKeyPair, error) {
	if len(publicKey) != SealKeySize || len(privateKey) != SealKeySize {
		return nil, ErrInvalidSealKey
	}
	kp := &SealKeyPair{}
	copy(kp.public[:], publicKey)
	copy(kp.private[:], privateKey)
	return kp, nil
}

// PublicKey returns a copy of the public half.
func (kp *SealKeyPair) PublicKey() []byte {
	out := make([]byte, SealKeySize)
	copy(out, kp.public[:])
	return out
}

// PrivateKey returns a copy of the private half.
func (kp *SealKeyPair) PrivateKey() []byte {
	out := make([]byte, SealKeySize)
	copy(out, kp.private[:])
	return out
}

// Open opens a box sealed to this key pair.
func (kp *SealKeyPair) Open(sealed []byte) ([]byte, error) {
	return Open(sealed, kp.public[:], kp.private[:])
}

// Seal encrypts plaintext so that only the holder of the private key matching
// recipientPublicKey can read it. The sender needs no key of its own.
func Seal(recipientPublicKey, plaintext []byte) ([]byte, error) {
	if len(recipientPublicKey) != SealKeySize {
		return nil, ErrInvalidSealKey
	}
	var pub [SealKeySize]byte
	copy(pub[:], recipientPublicKey)

	sealed, err := box.SealAnonymous(nil, plaintext, &pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return sealed, nil
}

// Open recovers the plaintext of a sealed box. It fails with ErrOpenFailed if
// the box was sealed to a different key or has been modified.
func Open(sealed, publicKey, privateKey []byte) ([]byte, error) {
	if len(publicKey) != SealKeySize || len(privateKey) != SealKeySize {
		return nil, ErrInvalidSealKey
	}
	if len(sealed) < SealOverhead {
		return nil, ErrOpenFailed
	}

	var pub, priv [SealKeySize]byte
	copy(pub[:], publicKey)
	copy(priv[:], privateKey)

	plaintext, ok := box.OpenAnonymous(nil, sealed, &pub, &priv)
	if !ok {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

package session

import (
	"crypto/cipher"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/backkem/netauth/pkg/crypto"
)

// Cipher constants.
const (
	// KeySize is the transport key length.
	KeySize = crypto.SymmetricKeySize

	// CounterSize is the nonce counter prefix carried in every frame.
	CounterSize = crypto.CounterSize

	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead = CounterSize + crypto.TagSize

	// ReconnectNoncePadding is how far the starting counter is moved past
	// the last known value when a key may be reused.
	ReconnectNoncePadding uint64 = 2_000_000

	nonceStep = 2
)

// Cipher encrypts and decrypts transport frames for one connection.
//
// Frame format: Counter (8 bytes LE) || XChaCha20-Poly1305 ciphertext+tag.
//
// Encrypt advances the counter by 2 before each use, so the server (even
// counters) and client (odd counters) never produce the same nonce under
// the shared key. Encrypt and Decrypt are safe for concurrent use.
type Cipher struct {
	role  Role
	nonce atomic.Uint64

	mu   sync.RWMutex
	aead cipher.AEAD
	key  []byte
}

// NewCipher creates a Cipher for key. The counter starts at the role's
// initial value.
func NewCipher(key []byte, role Role) (*Cipher, error) {
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	aead, err := crypto.NewAEAD(key)
	if err != nil {
		return nil, err
	}

	c := &Cipher{
		role: role,
		aead: aead,
		key:  append([]byte(nil), key...),
	}
	c.nonce.Store(role.InitialNonce())
	return c, nil
}

// Role returns the cipher's role.
func (c *Cipher) Role() Role {
	return c.role
}

// Nonce returns the counter value used by the most recent Encrypt, or the
// starting value if nothing has been encrypted yet.
func (c *Cipher) Nonce() uint64 {
	return c.nonce.Load()
}

// SetNonce moves the counter. The next Encrypt uses v+2.
func (c *Cipher) SetNonce(v uint64) {
	c.nonce.Store(v)
}

// Encrypt seals plaintext into a new frame.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.aead == nil {
		return nil, ErrCipherClosed
	}

	n := c.nonce.Add(nonceStep)
	if n < nonceStep {
		return nil, ErrNonceExhausted
	}

	frame := make([]byte, CounterSize, CounterSize+len(plaintext)+crypto.TagSize)
	binary.LittleEndian.PutUint64(frame, n)
	return crypto.AEADEncrypt(c.aead, frame, n, plaintext), nil
}

// Decrypt opens a frame produced by the peer's Encrypt. Frames carrying a
// counter of this side's own parity are refused, so a frame cannot be
// reflected back at its sender. Any failure is ErrDecryptionFailed and the
// connection must not be used further.
func (c *Cipher) Decrypt(frame []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.aead == nil {
		return nil, ErrCipherClosed
	}
	if len(frame) < Overhead {
		return nil, ErrDecryptionFailed
	}

	n := binary.LittleEndian.Uint64(frame[:CounterSize])
	if n&1 == c.role.InitialNonce()&1 {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := crypto.AEADDecrypt(c.aead, n, frame[CounterSize:])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Zeroize clears the key. Later Encrypt and Decrypt calls fail with
// ErrCipherClosed.
func (c *Cipher) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.key {
		c.key[i] = 0
	}
	c.aead = nil
}

// FrameCounter returns the counter embedded in a frame.
func FrameCounter(frame []byte) (uint64, bool) {
	if len(frame) < CounterSize {
		return 0, false
	}
	return binary.LittleEndian.Uint64(frame[:CounterSize]), true
}

// NextStartingNonce returns the starting counter for a session that may
// reuse a key last seen at counter last. The result is at least
// ReconnectNoncePadding past last and has the role's parity.
func NextStartingNonce(last uint64, role Role) uint64 {
	var n uint64
	if last > math.MaxUint64-ReconnectNoncePadding-1 {
		n = math.MaxUint64
	} else {
		n = last + ReconnectNoncePadding
	}

	want := role.InitialNonce() & 1
	if n&1 != want {
		if n == math.MaxUint64 {
			n--
		} else {
			n++
		}
	}
	return n
}

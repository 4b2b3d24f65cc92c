package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

// Nonce constants for the transport AEAD.
const (
	// NonceSize is the XChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSizeX

	// CounterSize is the number of nonce bytes carried on the wire.
	CounterSize = 8
)

// BuildNonce expands a 64-bit message counter into a full AEAD nonce.
//
// Format: Counter (8 bytes LE) || zero padding (16 bytes)
//
// Only the counter is transmitted; uniqueness of (key, counter) is the
// caller's responsibility.
func BuildNonce(counter uint64) []byte {
	nonce := make([]byte, NonceSize)
	binary.LittleEndian.PutUint64(nonce[:CounterSize], counter)
	return nonce
}

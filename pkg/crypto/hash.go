// Package crypto provides the cryptographic primitives used by the login
// handshake: anonymous sealed boxes for the key exchange, XChaCha20-Poly1305
// for the transport cipher, P-256 keys for credential signatures and the
// auth hash that binds a credential to one key exchange.
package crypto

import "crypto/sha256"

// AuthHashSize is the length of an auth hash in bytes.
const AuthHashSize = sha256.Size

// AuthHash computes SHA-256(sharedSecret || serverPublicKey).
//
// A client commits to this value inside its signed credential before the
// handshake; the server recomputes it from the secret it unsealed. A match
// proves the credential was minted for this exchange with this server.
func AuthHash(sharedSecret, serverPublicKey []byte) []byte {
	h := sha256.New()
	h.Write(sharedSecret)
	h.Write(serverPublicKey)
	return h.Sum(nil)
}

// AuthHashString returns AuthHash in the textual form carried in credentials.
func AuthHashString(sharedSecret, serverPublicKey []byte) string {
	return Base64URL(AuthHash(sharedSecret, serverPublicKey))
}

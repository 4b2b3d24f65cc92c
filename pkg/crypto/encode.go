package crypto

import "encoding/base64"

// Base64 encodes b with standard padded base64. Server public keys use this
// form in the credential audience claim.
func Base64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64URL encodes b with unpadded URL-safe base64.
func Base64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard padded base64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

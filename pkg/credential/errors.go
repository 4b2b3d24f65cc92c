package credential

import (
	"errors"
	"fmt"
)

// Credential package errors.
var (
	// ErrInvalidServerKey is returned when the server sealing key is not 32 bytes.
	ErrInvalidServerKey = errors.New("credential: invalid server public key")

	// ErrNoSigningKey is returned by NewIssuer without a key.
	ErrNoSigningKey = errors.New("credential: signing key is required")
)

// Reason identifies why a credential was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonBadPublicKey
	ReasonInvalidSignature
	ReasonNotYetValid
	ReasonExpired
	ReasonMalformed
	ReasonNoClaims
	ReasonBadClaims
	ReasonMissingAudience
	ReasonWrongAudience
	ReasonMissingAuthHash
	ReasonWrongAuthHash
)

// String returns a short name for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonBadPublicKey:
		return "bad public key"
	case ReasonInvalidSignature:
		return "invalid signature"
	case ReasonNotYetValid:
		return "not yet valid"
	case ReasonExpired:
		return "expired"
	case ReasonMalformed:
		return "malformed"
	case ReasonNoClaims:
		return "no claims"
	case ReasonBadClaims:
		return "bad claims"
	case ReasonMissingAudience:
		return "missing audience"
	case ReasonWrongAudience:
		return "wrong audience"
	case ReasonMissingAuthHash:
		return "missing auth hash"
	case ReasonWrongAuthHash:
		return "wrong auth hash"
	default:
		return "unknown"
	}
}

// Message returns the disconnect text shown to the user.
func (r Reason) Message() string {
	switch r {
	case ReasonBadPublicKey:
		return "JWT Validation Error - Bad public key."
	case ReasonInvalidSignature:
		return "JWT Validation Error - Token has invalid signature."
	case ReasonNotYetValid:
		return "JWT Validation Error - Token is not valid yet."
	case ReasonExpired:
		return "JWT Validation Error - Token has expired."
	case ReasonNoClaims:
		return "JWT Validation Error - No JSON in JWT."
	case ReasonBadClaims:
		return "JWT Validation Error - Bad/Missing JSON in JWT."
	case ReasonMissingAudience:
		return "JWT Validation Error - No audience claim in JWT."
	case ReasonWrongAudience:
		return "JWT Validation Error\nJWT appears to be for another server.\nTry returning to launcher and reconnect."
	case ReasonMissingAuthHash:
		return "JWT Validation Error - No auth hash in JWT\n(Ensure you are using latest launcher version)."
	case ReasonWrongAuthHash:
		return "JWT Validation Error - Wrong auth hash in JWT\n(Check server address is correct)."
	default:
		return "Misc JWT Error."
	}
}

// Error is returned by Validator.Validate.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential: %s", e.Reason)
	}
	return fmt.Sprintf("credential: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the rejection reason carried by err, or ReasonNone.
func ReasonOf(err error) Reason {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ReasonNone
}

package identity

import "fmt"

// MaxUserNameLength is the longest accepted guest username.
const MaxUserNameLength = 32

// Name prefixes that keep guests from colliding with account names.
const (
	PrefixLocal = "localhost@"
	PrefixGuest = "guest@"
)

// UserNameInvalidReason explains why a requested username was rejected.
type UserNameInvalidReason int

const (
	UserNameValid UserNameInvalidReason = iota
	UserNameEmpty
	UserNameTooLong
	UserNameInvalidCharacter
)

// String returns the client-facing text for the reason.
func (r UserNameInvalidReason) String() string {
	switch r {
	case UserNameValid:
		return "Username is valid"
	case UserNameEmpty:
		return "Username is empty"
	case UserNameTooLong:
		return "Username is too long"
	case UserNameInvalidCharacter:
		return "Username contains an invalid character"
	default:
		return "Unknown"
	}
}

// UserNameError is returned by ValidateUserName.
type UserNameError struct {
	Reason UserNameInvalidReason
}

func (e *UserNameError) Error() string {
	return fmt.Sprintf("identity: invalid username: %s", e.Reason)
}

// ValidateUserName checks a guest username: 1 to MaxUserNameLength
// characters drawn from ASCII letters, digits and underscore.
func ValidateUserName(name string) error {
	if name == "" {
		return &UserNameError{Reason: UserNameEmpty}
	}
	if len(name) > MaxUserNameLength {
		return &UserNameError{Reason: UserNameTooLong}
	}
	for i := 0; i < len(name); i++ {
		if !isNameChar(name[i]) {
			return &UserNameError{Reason: UserNameInvalidCharacter}
		}
	}
	return nil
}

func isNameChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return c == '_'
}

// SuffixedName returns the candidate display name for the n-th collision
// round. Round 1 is the base name itself; later rounds append "_n".
func SuffixedName(base string, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

package session

import "errors"

// Session package errors.
var (
	// ErrInvalidRole is returned when the cipher role is not Server or Client.
	ErrInvalidRole = errors.New("session: invalid role")

	// ErrInvalidKey is returned when an encryption key has invalid length.
	ErrInvalidKey = errors.New("session: invalid key length")

	// ErrDecryptionFailed is returned when a frame is short or fails
	// authentication. The connection must be terminated.
	ErrDecryptionFailed = errors.New("session: decryption failed")

	// ErrCipherClosed is returned after a cipher has been zeroized.
	ErrCipherClosed = errors.New("session: cipher closed")

	// ErrNonceExhausted is returned when the nonce counter would wrap.
	ErrNonceExhausted = errors.New("session: nonce counter exhausted")

	// ErrInvalidContext is returned when registering an incomplete context.
	ErrInvalidContext = errors.New("session: invalid session context")

	// ErrSessionNotFound is returned when a session lookup fails.
	ErrSessionNotFound = errors.New("session: session not found")

	// ErrDuplicateSession is returned when a connection already has a session.
	ErrDuplicateSession = errors.New("session: duplicate session for connection")

	// ErrUserConnected is returned when the user already has a live session.
	ErrUserConnected = errors.New("session: user already connected")

	// ErrDisconnectPending is returned when the user is already being
	// disconnected to make room for another connection.
	ErrDisconnectPending = errors.New("session: disconnect already pending for user")

	// ErrSessionTableFull is returned when no more sessions can be added.
	ErrSessionTableFull = errors.New("session: session table full")

	// ErrManagerClosed is returned after Close.
	ErrManagerClosed = errors.New("session: manager closed")
)

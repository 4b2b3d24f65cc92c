package handshake

import (
	"fmt"

	"github.com/backkem/netauth/pkg/identity"
	"github.com/google/uuid"
)

// Sizes of fixed handshake fields.
const (
	VerifyTokenSize  = 4
	SharedSecretSize = 32

	// SealedPayloadSize is the plaintext size inside EncryptionResponse's
	// sealed data: shared secret followed by the verify token.
	SealedPayloadSize = SharedSecretSize + VerifyTokenSize

	// MaxHardwareIDLength is bounded by the one-byte length prefix.
	MaxHardwareIDLength = 255
)

// Server reply discriminator. It precedes the first server message so the
// authenticated and guest flows start with a frame of the same shape.
const (
	replyEncryptionRequest byte = 0
	replyLoginSuccess      byte = 1
)

// LoginStart is the first client message.
type LoginStart struct {
	UserName             string
	HardwareID           []byte
	CanAuthenticate      bool
	NeedsServerPublicKey bool
	WantsEncryption      bool
}

// Encode serializes the message.
func (m *LoginStart) Encode() ([]byte, error) {
	if len(m.HardwareID) > MaxHardwareIDLength {
		return nil, fmt.Errorf("%w: hardware id is %d bytes", ErrFieldTooLong, len(m.HardwareID))
	}
	var w writer
	w.string(m.UserName)
	w.byte(byte(len(m.HardwareID)))
	w.raw(m.HardwareID)
	w.bool(m.CanAuthenticate)
	w.bool(m.NeedsServerPublicKey)
	w.bool(m.WantsEncryption)
	return w.finish()
}

// DecodeLoginStart parses a LoginStart.
func DecodeLoginStart(data []byte) (*LoginStart, error) {
	r := newReader(data)
	m := &LoginStart{}
	m.UserName = r.string()
	m.HardwareID = r.raw(int(r.byte()))
	m.CanAuthenticate = r.bool()
	m.NeedsServerPublicKey = r.bool()
	m.WantsEncryption = r.bool()
	if err := r.done(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncryptionRequest asks the client to seal a shared secret to the server.
type EncryptionRequest struct {
	// PublicKey is the server's sealing key, empty when the client said it
	// already has it.
	PublicKey   []byte
	VerifyToken [VerifyTokenSize]byte
}

// Encode serializes the message.
func (m *EncryptionRequest) Encode() ([]byte, error) {
	var w writer
	w.bytes(m.PublicKey)
	w.raw(m.VerifyToken[:])
	return w.finish()
}

// DecodeEncryptionRequest parses an EncryptionRequest.
func DecodeEncryptionRequest(data []byte) (*EncryptionRequest, error) {
	r := newReader(data)
	m := &EncryptionRequest{}
	m.PublicKey = r.bytes()
	copy(m.VerifyToken[:], r.raw(VerifyTokenSize))
	if err := r.done(); err != nil {
		return nil, err
	}
	return m, nil
}

// MaxStartingNonce is the largest starting counter a client may request.
// Anything above it leaves too few counters for the session's frames.
const MaxStartingNonce uint64 = 1<<63 - 2

// EncryptionResponse carries the sealed secret and the client's credential.
type EncryptionResponse struct {
	SealedData    []byte
	Token         string
	UserPublicKey string
	StartingNonce uint64
}

// Encode serializes the message.
func (m *EncryptionResponse) Encode() ([]byte, error) {
	var w writer
	w.bytes(m.SealedData)
	w.string(m.Token)
	w.string(m.UserPublicKey)
	w.uint64(m.StartingNonce)
	return w.finish()
}

// DecodeEncryptionResponse parses an EncryptionResponse.
func DecodeEncryptionResponse(data []byte) (*EncryptionResponse, error) {
	r := newReader(data)
	m := &EncryptionResponse{}
	m.SealedData = r.bytes()
	m.Token = r.string()
	m.UserPublicKey = r.string()
	m.StartingNonce = r.uint64()
	if err := r.done(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoginSuccess tells the client who it was admitted as.
type LoginSuccess struct {
	UserID      identity.UserID
	DisplayName string
	LoginType   identity.LoginType
}

// Encode serializes the message.
func (m *LoginSuccess) Encode() ([]byte, error) {
	var w writer
	w.raw(m.UserID[:])
	w.string(m.DisplayName)
	w.byte(byte(m.LoginType))
	return w.finish()
}

// DecodeLoginSuccess parses a LoginSuccess.
func DecodeLoginSuccess(data []byte) (*LoginSuccess, error) {
	r := newReader(data)
	m := &LoginSuccess{}
	id, err := uuid.FromBytes(r.raw(16))
	if err != nil {
		r.fail(err)
	}
	m.UserID = id
	m.DisplayName = r.string()
	m.LoginType = identity.LoginType(r.byte())
	if err := r.done(); err != nil {
		return nil, err
	}
	if !m.LoginType.IsValid() {
		return nil, fmt.Errorf("%w: login type %d", ErrMalformedMessage, m.LoginType)
	}
	return m, nil
}

// withReply prefixes an encoded server message with its discriminator.
func withReply(kind byte, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, kind)
	return append(out, payload...)
}

package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeal_RoundTrip(t *testing.T) {
	kp, err := GenerateSealKeyPair()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"secret and verify token", bytes.Repeat([]byte{0x5A}, 36)},
		{"large", bytes.Repeat([]byte("netauth"), 1000)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := Seal(kp.PublicKey(), tc.plaintext)
			require.NoError(t, err)
			assert.Len(t, sealed, len(tc.plaintext)+SealOverhead)

			opened, err := kp.Open(sealed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tc.plaintext, opened))
		})
	}
}

func TestSeal_WrongKeyFails(t *testing.T) {
	recipient, err := GenerateSealKeyPair()
	require.NoError(t, err)
	other, err := GenerateSealKeyPair()
	require.NoError(t, err)

	sealed, err := Seal(recipient.PublicKey(), []byte("shared secret"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrOpenFailed)

	// Right public key, wrong private key.
	_, err = Open(sealed, recipient.PublicKey(), other.PrivateKey())
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestSeal_TamperedFails(t *testing.T) {
	kp, err := GenerateSealKeyPair()
	require.NoError(t, err)

	sealed, err := Seal(kp.PublicKey(), []byte("shared secret"))
	require.NoError(t, err)

	for i := range sealed {
		mod := append([]byte{}, sealed...)
		mod[i] ^= 0x01
		_, err := kp.Open(mod)
		require.ErrorIs(t, err, ErrOpenFailed, "flipped byte %d", i)
	}

	_, err = kp.Open(sealed[:SealOverhead-1])
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestSealKeyPairFromBytes(t *testing.T) {
	kp, err := GenerateSealKeyPair()
	require.NoError(t, err)

	restored, err := SealKeyPairFromBytes(kp.PublicKey(), kp.PrivateKey())
	require.NoError(t, err)

	sealed, err := Seal(kp.PublicKey(), []byte("hello"))
	require.NoError(t, err)
	opened, err := restored.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), opened)

	_, err = SealKeyPairFromBytes(kp.PublicKey()[:31], kp.PrivateKey())
	assert.ErrorIs(t, err, ErrInvalidSealKey)
	_, err = Seal(make([]byte, 16), nil)
	assert.ErrorIs(t, err, ErrInvalidSealKey)
}

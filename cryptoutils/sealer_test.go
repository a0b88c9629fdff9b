package cryptoutils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterSecret() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testMasterSecret())
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("abc123"), []byte("passphrase/11222333000144"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abc123")

	opened, err := sealer.Open(sealed, []byte("passphrase/11222333000144"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", string(opened))
}

func TestSealer_NonceIsFresh(t *testing.T) {
	sealer, err := NewSealer(testMasterSecret())
	require.NoError(t, err)

	a, err := sealer.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := sealer.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_Failures(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidMasterSecret)

	sealer, err := NewSealer(testMasterSecret())
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("secret"), []byte("key-a"))
	require.NoError(t, err)

	_, err = sealer.Open(sealed, []byte("key-b"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = sealer.Open(tampered, []byte("key-a"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = sealer.Open([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	other, err := NewSealer(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	_, err = other.Open(sealed, []byte("key-a"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

package secret

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(newTestKey(t))
	require.NoError(t, err)

	plaintext := []byte("JBSWY3DPEHPK3PXP totp seed material")
	env, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	assert.Len(t, env.Nonce, NonceSize)
	assert.Len(t, env.Tag, TagSize)
	assert.NotEqual(t, plaintext, env.Ciphertext)

	got, err := c.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	c, err := NewCipher(newTestKey(t))
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a.Nonce, b.Nonce), "nonces must be unique per call")
	assert.False(t, bytes.Equal(a.Ciphertext, b.Ciphertext))
}

func TestDecryptFailsClosed(t *testing.T) {
	key := newTestKey(t)
	c, err := NewCipher(key)
	require.NoError(t, err)

	env, err := c.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := env
		bad.Ciphertext = append([]byte(nil), env.Ciphertext...)
		bad.Ciphertext[0] ^= 0x01
		got, err := c.Decrypt(bad)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assert.Nil(t, got)
	})

	t.Run("tampered tag", func(t *testing.T) {
		bad := env
		bad.Tag = append([]byte(nil), env.Tag...)
		bad.Tag[0] ^= 0x01
		_, err := c.Decrypt(bad)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewCipher(newTestKey(t))
		require.NoError(t, err)
		_, err = other.Decrypt(env)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("truncated nonce", func(t *testing.T) {
		bad := env
		bad.Nonce = env.Nonce[:NonceSize-1]
		_, err := c.Decrypt(bad)
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})
}

func TestBlobRoundTripAndTruncation(t *testing.T) {
	c, err := NewCipher(newTestKey(t))
	require.NoError(t, err)

	blob, err := c.EncryptBlob([]byte("backup-code-set"))
	require.NoError(t, err)

	got, err := c.DecryptBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("backup-code-set"), got)

	_, err = c.DecryptBlob(blob[:NonceSize+TagSize-1])
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	// Truncating inside the ciphertext keeps the envelope parseable but must
	// still fail authentication.
	_, err = c.DecryptBlob(blob[:len(blob)-1])
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

// Package secret provides authenticated symmetric encryption (AES-256-GCM)
// for protecting sensitive material at rest: MFA seeds, backup codes, and
// arbitrary payloads. Decryption fails closed — a tampered or truncated
// envelope yields ErrDecryptionFailed and no plaintext.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

var (
	// ErrInvalidKey indicates a key of the wrong length.
	ErrInvalidKey = errors.New("secret: key must be 32 bytes")

	// ErrDecryptionFailed indicates tag mismatch, truncated input, or a
	// wrong key. No partial plaintext is ever returned.
	ErrDecryptionFailed = errors.New("secret: decryption failed")

	// ErrMalformedEnvelope indicates a stored envelope that cannot be split
	// into nonce, ciphertext, and tag.
	ErrMalformedEnvelope = errors.New("secret: malformed envelope")
)

// Envelope is the result of one Encrypt call: ciphertext, the fresh random
// nonce used for it, and the authentication tag.
type Envelope struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Marshal packs the envelope into a single nonce|ciphertext|tag byte slice
// suitable for storage in one column or cache value.
func (e Envelope) Marshal() []byte {
	out := make([]byte, 0, len(e.Nonce)+len(e.Ciphertext)+len(e.Tag))
	out = append(out, e.Nonce...)
	out = append(out, e.Ciphertext...)
	out = append(out, e.Tag...)
	return out
}

// ParseEnvelope splits a marshaled nonce|ciphertext|tag blob back into an
// Envelope. The ciphertext may be empty; nonce and tag may not.
func ParseEnvelope(blob []byte) (Envelope, error) {
	if len(blob) < NonceSize+TagSize {
		return Envelope{}, ErrMalformedEnvelope
	}
	return Envelope{
		Nonce:      blob[:NonceSize],
		Ciphertext: blob[NonceSize : len(blob)-TagSize],
		Tag:        blob[len(blob)-TagSize:],
	}, nil
}

// Cipher performs AEAD encryption under a fixed key. It is safe for
// concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// envelope. Nonces are never reused: each call draws NonceSize bytes from
// crypto/rand.
func (c *Cipher) Encrypt(plaintext []byte) (Envelope, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("secret: nonce generation: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return Envelope{
		Nonce:      nonce,
		Ciphertext: sealed[:len(sealed)-TagSize],
		Tag:        sealed[len(sealed)-TagSize:],
	}, nil
}

// Decrypt opens an envelope, verifying the authentication tag. Any
// mismatch, truncation, or wrong key returns ErrDecryptionFailed.
func (c *Cipher) Decrypt(env Envelope) ([]byte, error) {
	if len(env.Nonce) != NonceSize || len(env.Tag) != TagSize {
		return nil, ErrMalformedEnvelope
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := c.aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptBlob is a convenience wrapper returning the marshaled envelope.
func (c *Cipher) EncryptBlob(plaintext []byte) ([]byte, error) {
	env, err := c.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return env.Marshal(), nil
}

// DecryptBlob decrypts a marshaled envelope produced by EncryptBlob.
func (c *Cipher) DecryptBlob(blob []byte) ([]byte, error) {
	env, err := ParseEnvelope(blob)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(env)
}

// Zero overwrites b with zeros. Use it to scrub key material and decrypted
// seeds once they are no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidMasterSecret = errors.New("master secret must be at least 32 bytes")
	ErrInvalidCiphertext   = errors.New("invalid ciphertext")
	ErrDecryptionFailed    = errors.New("decryption failed")
)

// sealerSalt domain-separates the derived key from other uses of the master secret.
var sealerSalt = []byte("sefaz-config-gateway/passphrase-sealer/v1")

// Sealer performs authenticated symmetric encryption of small secrets.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from masterSecret.
func NewSealer(masterSecret []byte) (*Sealer, error) {
	if len(masterSecret) < 32 {
		return nil, ErrInvalidMasterSecret
	}

	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	key := argon2.IDKey(masterSecret, sealerSalt, 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext. associatedData is authenticated but not encrypted.
func (s *Sealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open reverses Seal. It fails if the ciphertext or associatedData were altered.
func (s *Sealer) Open(sealed, associatedData []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

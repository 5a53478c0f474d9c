// Package cryptoutil seals credential material that leaves process memory
// (rotated pairs published to Redis for other gateway instances).
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer encrypts and authenticates values bound to associated data (typically the storage key),
// so a ciphertext copied under another key fails to open.
type Sealer interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(ciphertext string, aad []byte) ([]byte, error)
}

const (
	// Versioned prefix to allow future key/algorithm rotations.
	sealedPrefixV1 = "v1:"
	noopPrefix     = "noop:"
)

// AESGCMSealer implements Sealer using AES-256-GCM.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMSealer{aead: aead}, nil
}

// NewAESGCMSealerFromString derives a 32-byte key from a 64-char hex string,
// or from the SHA-256 of any other non-empty string.
func NewAESGCMSealerFromString(key string) (*AESGCMSealer, error) {
	if key == "" {
		return nil, errors.New("encryption key is required")
	}
	keyBytes, err := hex.DecodeString(key)
	if err != nil || len(keyBytes) != 32 {
		sum := sha256.Sum256([]byte(key))
		keyBytes = sum[:]
	}
	return NewAESGCMSealer(keyBytes)
}

// Seal encrypts plaintext with a random nonce and returns a versioned base64 string.
func (s *AESGCMSealer) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	// nonce||ciphertext
	out := s.aead.Seal(nonce, nonce, plaintext, aad)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal with the same associated data.
func (s *AESGCMSealer) Open(ciphertext string, aad []byte) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, sealedPrefixV1) {
		return nil, errors.New("unknown ciphertext version")
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return s.aead.Open(nil, data[:nonceSize], data[nonceSize:], aad)
}

// NoopSealer stores plaintext with a prefix marker. For tests and single-node dev only.
type NoopSealer struct{}

func (NoopSealer) Seal(plaintext, _ []byte) (string, error) {
	return noopPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopSealer) Open(ciphertext string, _ []byte) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, noopPrefix) {
		return nil, errors.New("invalid noop ciphertext")
	}
	return base64.StdEncoding.DecodeString(ciphertext[len(noopPrefix):])
}

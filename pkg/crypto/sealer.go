// Package crypto seals message content at rest.
//
// Sealed values are XChaCha20-Poly1305 ciphertexts, base64 encoded and
// prefixed with "enc:v1:". The random 24-byte nonce is stored in front of the
// ciphertext, so the same plaintext never produces the same value twice.
// Values without the prefix are treated as plaintext, which keeps rows written
// before a key was configured readable.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "enc:v1:"

// Sealer converts content to and from its stored form.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(stored string) ([]byte, error)
}

// NewSealer returns an AEAD sealer for a 32-byte key, or a pass-through
// sealer when key is empty.
func NewSealer(key []byte) (Sealer, error) {
	if len(key) == 0 {
		return plainSealer{}, nil
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.NewX: %w", err)
	}
	return &aeadSealer{aead: aead}, nil
}

type aeadSealer struct {
	aead cipher.AEAD
}

func (s *aeadSealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *aeadSealer) Open(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return []byte(stored), nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong key or corrupted data): %w", err)
	}
	return plaintext, nil
}

type plainSealer struct{}

func (plainSealer) Seal(plaintext []byte) (string, error) {
	return string(plaintext), nil
}

func (plainSealer) Open(stored string) ([]byte, error) {
	if strings.HasPrefix(stored, sealedPrefix) {
		return nil, fmt.Errorf("content is sealed but no content key is configured")
	}
	return []byte(stored), nil
}

package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts credential payloads at rest.
type Sealer interface {
	Seal(plaintext, associatedData []byte) ([]byte, error)
	Open(ciphertext, associatedData []byte) ([]byte, error)
}

// ChaChaSealer seals with XChaCha20-Poly1305 using a random nonce prefixed to
// the ciphertext.
type ChaChaSealer struct {
	aead cipher.AEAD
}

var _ Sealer = (*ChaChaSealer)(nil)

// NewChaChaSealer creates a sealer from a 32 byte key.
func NewChaChaSealer(key []byte) (*ChaChaSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[NewChaChaSealer] %w", err)
	}
	return &ChaChaSealer{aead: aead}, nil
}

// NewChaChaSealerFromBase64 decodes a standard base64 key and creates a sealer.
func NewChaChaSealerFromBase64(encodedKey string) (*ChaChaSealer, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("[NewChaChaSealerFromBase64] decoding key: %w", err)
	}
	return NewChaChaSealer(key)
}

func (s *ChaChaSealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[ChaChaSealer Seal] generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

func (s *ChaChaSealer) Open(ciphertext, associatedData []byte) ([]byte, error) {
	if len(ciphertext) < s.aead.NonceSize() {
		return nil, errors.New("[ChaChaSealer Open] ciphertext too short")
	}
	nonce, sealed := ciphertext[:s.aead.NonceSize()], ciphertext[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, fmt.Errorf("[ChaChaSealer Open] %w", err)
	}
	return plaintext, nil
}

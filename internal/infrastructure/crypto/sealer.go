// Package crypto seals credential columns with NaCl secretbox before they
// reach the database.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	prefix    = "sb1:"
)

var ErrOpen = errors.New("sealed value cannot be opened")

// Sealer encrypts and authenticates short strings. A Sealer without a key
// stores plaintext; values sealed under a key carry a version prefix so
// plaintext rows written before a key was configured stay readable.
type Sealer struct {
	key *[keySize]byte
}

// NewSealer decodes a base64 32-byte key. An empty key yields a pass-through
// sealer.
func NewSealer(encodedKey string) (*Sealer, error) {
	if encodedKey == "" {
		return &Sealer{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", keySize, len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &Sealer{key: &key}, nil
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s.key != nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if s.key == nil {
		return plaintext, nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return prefix + base64.StdEncoding.EncodeToString(box), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, prefix) {
		return sealed, nil
	}
	if s.key == nil {
		return "", fmt.Errorf("%w: no key configured", ErrOpen)
	}
	box, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, prefix))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrOpen
	}
	return string(plain), nil
}

// Package sealed encrypts chat message bodies with a shared AES-256-GCM key.
package sealed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	NonceSize = 12
)

var ErrKeySize = fmt.Errorf("key must be %d bytes", KeySize)

type Box struct {
	aead cipher.AEAD
	rand io.Reader
}

func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead, rand: rand.Reader}, nil
}

// ParseKey decodes a base64 (standard or URL) encoded key.
func ParseKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(s); err == nil {
			if len(key) != KeySize {
				return nil, ErrKeySize
			}
			return key, nil
		}
	}
	return nil, errors.New("key is not valid base64")
}

// Seal encrypts plaintext and returns the base64 ciphertext and nonce.
func (b *Box) Seal(plaintext string) (ciphertext, iv string, err error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(b.rand, nonce); err != nil {
		return "", "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

func (b *Box) Open(ciphertext, iv string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	if len(nonce) != NonceSize {
		return "", fmt.Errorf("iv must be %d bytes", NonceSize)
	}
	plain, err := b.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("open message: %w", err)
	}
	return string(plain), nil
}

// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// seal.go -- AES-256-GCM sealing of the anonymous learner ID so a client
// cannot pick another learner's ID by editing its cookie.

package server

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrUnsealed is returned by Open for values that were not produced by Seal
// with the same key.
var ErrUnsealed = errors.New("server: identity not sealed with this key")

// Sealer authenticates and encrypts short identity strings.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("server: identity key must be exactly 32 bytes (got %d)", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal returns base64url(nonce || ciphertext).
func (s *Sealer) Seal(id string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := s.gcm.Seal(nonce, nonce, []byte(id), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrUnsealed
	}
	n := s.gcm.NonceSize()
	if len(raw) < n {
		return "", ErrUnsealed
	}
	plain, err := s.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrUnsealed
	}
	return string(plain), nil
}

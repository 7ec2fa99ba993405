// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package pipeline

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// encryptionSalt binds derived keys to backup artifact encryption.
	encryptionSalt = "custodia-backup-artifacts"

	// encryptionInfo versions the key derivation for rotation support.
	encryptionInfo = "artifact-encryption-v1"

	// aesKeySize is 256 bits.
	aesKeySize = 32
)

var (
	// ErrEmptySecret is returned when no encryption secret is configured.
	ErrEmptySecret = errors.New("encryption secret cannot be empty")

	// ErrCiphertextTooShort is returned when the ciphertext is shorter
	// than the nonce prefix.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrDecryptionFailed is returned when the authentication tag does
	// not verify (tampered or truncated artifact).
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")
)

// encryptionStage applies AES-256-GCM authenticated encryption. The key
// is derived from the configured secret with HKDF-SHA256 and a random
// nonce is prepended to each ciphertext.
type encryptionStage struct {
	aead  cipher.AEAD
	keyID string
}

// NewEncryptionStage creates the encryption stage from key material.
func NewEncryptionStage(secret, keyID string) (Stage, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(encryptionSalt), []byte(encryptionInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &encryptionStage{aead: aead, keyID: keyID}, nil
}

func (s *encryptionStage) Name() string { return "aes-256-gcm" }

func (s *encryptionStage) Apply(data []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	// Seal appends to nonce, yielding nonce||ciphertext||tag.
	return s.aead.Seal(nonce, nonce, data, nil), nil
}

func (s *encryptionStage) Reverse(data []byte) ([]byte, error) {
	if len(data) < s.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	out, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}

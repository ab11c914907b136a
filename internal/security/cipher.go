// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ============================================================================
// CIPHER HOOK
// ============================================================================

// Cipher is the pluggable payload encode/decode hook. Confidentiality is a
// deployment-time decision: the gate passes payloads through unchanged when
// no cipher is configured.
type Cipher interface {
	// Encrypt encodes a serialized payload.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt decodes a previously encrypted payload.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// ============================================================================
// AES-GCM CIPHER
// ============================================================================

const (
	// nonceSize is the AES-GCM nonce size (96 bits).
	nonceSize = 12

	// keySize is the AES-256 key size.
	keySize = 32

	// pbkdf2Iterations follows OWASP guidance for PBKDF2-SHA-256.
	pbkdf2Iterations = 600000
)

// gcmSalt is a fixed derivation salt for the shared transport secret. The
// per-message nonce provides uniqueness; the salt only separates this key
// from other uses of the same passphrase.
var gcmSalt = []byte("modmesh-transport-v1")

// ErrCiphertextTooShort indicates a truncated or corrupt ciphertext.
var ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce")

// AESCipher is an AES-256-GCM Cipher deriving its key from a shared
// passphrase via PBKDF2-SHA-256.
type AESCipher struct {
	key []byte
}

// NewAESCipher derives an AES-256 key from the passphrase.
func NewAESCipher(passphrase string) (*AESCipher, error) {
	if passphrase == "" {
		return nil, errors.New("empty cipher passphrase")
	}
	key := pbkdf2.Key([]byte(passphrase), gcmSalt, pbkdf2Iterations, keySize, sha256.New)
	return &AESCipher{key: key}, nil
}

// Encrypt seals plaintext as base64(nonce || ciphertext || tag).
func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// Decrypt reverses Encrypt, authenticating the ciphertext.
func (c *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertext)))
	n, err := base64.StdEncoding.Decode(sealed, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	sealed = sealed[:n]

	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}

	plaintext, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

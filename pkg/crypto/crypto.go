// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto implements the gateway's envelope encryption of
// long-lived OAuth credentials: a single process-wide master key seals
// every tenant's client id, client secret, and refresh token, with the
// tenant name bound in as associated data so a ciphertext sealed for one
// tenant can never be decrypted under another's identity.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// KeySize is the required length, in bytes, of the master encryption key.
const KeySize = 32

// nonceSize is the standard AES-GCM nonce length.
const nonceSize = 12

// SchemeVersion identifies the ciphertext layout. Stored beside every
// ciphertext so a future key-rotation scheme can tell old and new
// ciphertexts apart without guessing.
type SchemeVersion uint8

// CurrentScheme is the only scheme version this build produces. Future
// rotations add a new constant and a case in Service.Decrypt, they never
// repurpose an existing one.
const CurrentScheme SchemeVersion = 1

// Service performs authenticated encryption/decryption for tenant
// credentials under a single process-wide key.
type Service struct {
	aead cipher.AEAD
}

// GenerateKey returns a fresh random KeySize-byte master key, for
// first-run bootstrap of the on-disk key file.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, gwerrors.NewInternalError("failed to generate encryption key", err)
	}
	return key, nil
}

// NewService builds a Service from a 32-byte master key.
func NewService(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, gwerrors.NewInvalidArgumentError(
			fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key)), nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to initialize cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to initialize AEAD", err)
	}
	return &Service{aead: aead}, nil
}

// Sealed is a scheme-tagged ciphertext, ready to persist as a single
// base64 string (scheme version prefix, a dot, then the encoded bytes).
type Sealed string

// associatedData derives the AEAD's associated data from a tenant name.
// Binding on the name (not the tenant id) matches spec: a rename is an
// administrative act that should also re-seal credentials, not a silent
// decryption hole.
func associatedData(tenantName string) []byte {
	return []byte("tenant:" + tenantName)
}

// Encrypt seals plaintext under the service's key, binding it to
// tenantName as associated data.
func (s *Service) Encrypt(plaintext, tenantName string) (Sealed, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", gwerrors.NewInternalError("failed to generate nonce", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), associatedData(tenantName))
	encoded := base64.StdEncoding.EncodeToString(sealed)
	return Sealed(fmt.Sprintf("%d.%s", CurrentScheme, encoded)), nil
}

// Decrypt opens a Sealed value, verifying it was sealed for tenantName.
// Returns *errors.Error with Type ErrDecrypt on tag mismatch, associated
// data mismatch (wrong tenant), or an unrecognized scheme version.
func (s *Service) Decrypt(ciphertext Sealed, tenantName string) (string, error) {
	version, encoded, err := splitScheme(string(ciphertext))
	if err != nil {
		return "", gwerrors.NewDecryptError("malformed ciphertext", err)
	}
	if version != CurrentScheme {
		return "", gwerrors.NewDecryptError(fmt.Sprintf("unknown encryption scheme version %d", version), nil)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", gwerrors.NewDecryptError("failed to decode ciphertext", err)
	}
	if len(raw) < nonceSize {
		return "", gwerrors.NewDecryptError("ciphertext too short", nil)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, associatedData(tenantName))
	if err != nil {
		return "", gwerrors.NewDecryptError("decryption failed: tag or associated-data mismatch", err)
	}
	return string(plaintext), nil
}

func splitScheme(s string) (SchemeVersion, string, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			var v uint8
			if _, err := fmt.Sscanf(s[:i], "%d", &v); err != nil {
				return 0, "", fmt.Errorf("invalid scheme prefix: %w", err)
			}
			return SchemeVersion(v), s[i+1:], nil
		}
	}
	return 0, "", fmt.Errorf("missing scheme separator")
}

// Fingerprint returns a non-reversible, low-cardinality label for logging
// sensitive material (tokens, client secrets) without exposing it: the
// first 8 hex characters of its SHA-256 digest. Never sufficient to
// recover or compare the original value with confidence, only to
// correlate log lines about "the same secret" across events.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%x", sum[:4])
}

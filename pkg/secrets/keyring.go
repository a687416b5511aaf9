// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zalando/go-keyring"
)

// keyringService namespaces every entry this process writes to the OS
// keyring, so it never collides with unrelated applications' secrets.
const keyringService = "sdpgw"

// KeyringProvider stores secrets in the operator's OS keyring (Keychain,
// Secret Service, Windows Credential Manager). Intended for operators
// running the admin CLI from a workstation, not for the headless gateway
// process itself, which normally has no user session to back a keyring.
type KeyringProvider struct{}

// NewKeyringProvider builds a KeyringProvider.
func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{}
}

// GetSecret reads name from the OS keyring.
func (*KeyringProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	v, err := keyring.Get(keyringService, name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSecretNotFound, name, err)
	}
	return v, nil
}

// SetSecret writes name/value to the OS keyring.
func (*KeyringProvider) SetSecret(_ context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	return keyring.Set(keyringService, name, value)
}

// DeleteSecret removes name from the OS keyring.
func (*KeyringProvider) DeleteSecret(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	return keyring.Delete(keyringService, name)
}

// ListSecrets always fails: most OS keyring backends expose no
// enumerate-by-service API without elevated access.
func (*KeyringProvider) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return nil, fmt.Errorf("keyring provider does not support listing secrets")
}

// Cleanup is a no-op: there is no service-wide "delete everything" keyring
// operation worth wiring up, and the blast radius of getting it wrong
// (deleting unrelated credentials) isn't worth the convenience.
func (*KeyringProvider) Cleanup() error { return nil }

// Capabilities reports read/write/delete support, no list or cleanup.
func (*KeyringProvider) Capabilities() Capabilities {
	return Capabilities{CanRead: true, CanWrite: true, CanDelete: true}
}

// GenerateUniqueTestKey returns a key for keyring integration tests that
// is unique within this process only; separate test binaries produce the
// same sequence.
func GenerateUniqueTestKey() string {
	return fmt.Sprintf("test-%d", testKeyCounter.Add(1))
}

var testKeyCounter atomic.Int64

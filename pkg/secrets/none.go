// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"fmt"
)

// NoneProvider stores nothing; every read fails. It exists so a tenant
// configured with no bootstrap secrets source still gets a valid Provider
// rather than a nil check scattered through callers, and so operators can
// explicitly opt out of secrets resolution in single-tenant/dev setups.
type NoneProvider struct{}

// NewNoneProvider builds a NoneProvider.
func NewNoneProvider() *NoneProvider {
	return &NoneProvider{}
}

// GetSecret always fails.
func (*NoneProvider) GetSecret(_ context.Context, name string) (string, error) {
	return "", fmt.Errorf("none provider doesn't store secrets: %w: %s", ErrSecretNotFound, name)
}

// SetSecret always fails.
func (*NoneProvider) SetSecret(_ context.Context, _, _ string) error {
	return fmt.Errorf("none provider doesn't store secrets")
}

// DeleteSecret always fails.
func (*NoneProvider) DeleteSecret(_ context.Context, _ string) error {
	return fmt.Errorf("none provider doesn't store secrets")
}

// ListSecrets always succeeds with an empty list.
func (*NoneProvider) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return []SecretDescription{}, nil
}

// Cleanup is a no-op.
func (*NoneProvider) Cleanup() error { return nil }

// Capabilities reports list/cleanup support only, both trivially satisfied.
func (*NoneProvider) Capabilities() Capabilities {
	return Capabilities{CanList: true, CanCleanup: true}
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvVarPrefix is prepended to a secret's name to form the environment
// variable the environment provider reads from.
const EnvVarPrefix = "SDPGW_SECRET_"

// EnvironmentProvider resolves secrets from the process environment. It is
// the default bootstrap provider: it requires no external service and no
// on-disk state, at the cost of being read-only and unable to list what it
// holds (the gateway has no way to enumerate arbitrary env vars safely).
type EnvironmentProvider struct{}

// NewEnvironmentProvider builds an EnvironmentProvider.
func NewEnvironmentProvider() *EnvironmentProvider {
	return &EnvironmentProvider{}
}

// GetSecret reads EnvVarPrefix+name from the environment.
func (*EnvironmentProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	v := os.Getenv(EnvVarPrefix + name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return v, nil
}

// SetSecret always fails: the environment provider is read-only.
func (*EnvironmentProvider) SetSecret(_ context.Context, _, _ string) error {
	return fmt.Errorf("environment provider is read-only")
}

// DeleteSecret always fails: the environment provider is read-only.
func (*EnvironmentProvider) DeleteSecret(_ context.Context, _ string) error {
	return fmt.Errorf("environment provider is read-only")
}

// ListSecrets always fails: enumerating arbitrary environment variables by
// prefix risks exposing unrelated process secrets.
func (*EnvironmentProvider) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return nil, fmt.Errorf("environment provider does not support listing secrets for security reasons")
}

// Cleanup is a no-op: there is nothing for the environment provider to own.
func (*EnvironmentProvider) Cleanup() error { return nil }

// Capabilities reports read-only support.
func (*EnvironmentProvider) Capabilities() Capabilities {
	return Capabilities{CanRead: true}
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"strings"
)

// FallbackProvider wraps a primary Provider and, only on a GetSecret miss,
// retries against the environment. This lets an operator override any
// single bootstrap secret (e.g. during an incident, repoint a tenant's
// client secret) with an env var without reconfiguring the primary
// backend.
type FallbackProvider struct {
	primary Provider
	env     *EnvironmentProvider
}

// NewFallbackProvider wraps primary with environment-variable fallback.
func NewFallbackProvider(primary Provider) *FallbackProvider {
	return &FallbackProvider{primary: primary, env: NewEnvironmentProvider()}
}

func looksLikeNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"not found", "does not exist", "doesn't exist"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// GetSecret tries the primary provider first, then the environment if the
// primary reports the secret was not found.
func (f *FallbackProvider) GetSecret(ctx context.Context, name string) (string, error) {
	v, err := f.primary.GetSecret(ctx, name)
	if err == nil {
		return v, nil
	}
	if !looksLikeNotFound(err) {
		return "", err
	}
	if fv, ferr := f.env.GetSecret(ctx, name); ferr == nil {
		return fv, nil
	}
	return "", err
}

// SetSecret delegates to the primary provider.
func (f *FallbackProvider) SetSecret(ctx context.Context, name, value string) error {
	return f.primary.SetSecret(ctx, name, value)
}

// DeleteSecret delegates to the primary provider.
func (f *FallbackProvider) DeleteSecret(ctx context.Context, name string) error {
	return f.primary.DeleteSecret(ctx, name)
}

// ListSecrets delegates to the primary provider only; environment fallback
// secrets are invisible to listing, since there is no safe way to
// enumerate them.
func (f *FallbackProvider) ListSecrets(ctx context.Context) ([]SecretDescription, error) {
	return f.primary.ListSecrets(ctx)
}

// Cleanup delegates to the primary provider.
func (f *FallbackProvider) Cleanup() error {
	return f.primary.Cleanup()
}

// Capabilities reports the primary provider's capabilities plus read, since
// fallback always adds read support even to a write-only or no-op primary.
func (f *FallbackProvider) Capabilities() Capabilities {
	c := f.primary.Capabilities()
	c.CanRead = true
	return c
}

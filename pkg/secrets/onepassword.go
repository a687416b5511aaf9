// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"fmt"
	"os"
	"regexp"

	onepassword "github.com/1password/onepassword-sdk-go"
)

// Err1PasswordReadOnly is returned by every mutating OnePasswordProvider
// method: the 1Password integration exists to read operator-managed vault
// entries, never to create them from inside the gateway.
var Err1PasswordReadOnly = fmt.Errorf("1password provider is read-only")

var onePasswordPathRe = regexp.MustCompile(`^op://[^/]+/[^/]+/[^/]+$`)

// OnePasswordClient is the subset of the 1Password SDK client the provider
// needs, narrowed to a single method so it can be faked in tests without
// standing up the real SDK.
type OnePasswordClient interface {
	Resolve(ctx context.Context, secretPath string) (string, error)
}

type sdkClient struct {
	client *onepassword.Client
}

func (s *sdkClient) Resolve(ctx context.Context, secretPath string) (string, error) {
	return s.client.Secrets().Resolve(ctx, secretPath)
}

// OnePasswordProvider resolves secrets from 1Password "op://vault/item/field"
// references using a service-account token. Read-only: vault contents are
// operator-managed outside the gateway's lifecycle.
type OnePasswordProvider struct {
	client OnePasswordClient
}

// NewOnePasswordManager builds a OnePasswordProvider backed by the real SDK,
// authenticated via the OP_SERVICE_ACCOUNT_TOKEN environment variable.
func NewOnePasswordManager() (*OnePasswordProvider, error) {
	token := os.Getenv("OP_SERVICE_ACCOUNT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("OP_SERVICE_ACCOUNT_TOKEN is not set")
	}

	client, err := onepassword.NewClient(context.Background(),
		onepassword.WithServiceAccountToken(token),
		onepassword.WithIntegrationInfo("sdpgw", "dev"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create 1password client: %w", err)
	}

	return &OnePasswordProvider{client: &sdkClient{client: client}}, nil
}

// NewOnePasswordManagerWithClient builds a OnePasswordProvider around an
// arbitrary OnePasswordClient, for tests.
func NewOnePasswordManagerWithClient(client OnePasswordClient) *OnePasswordProvider {
	return &OnePasswordProvider{client: client}
}

// GetSecret resolves an "op://vault/item/field" reference.
func (p *OnePasswordProvider) GetSecret(ctx context.Context, path string) (string, error) {
	if !onePasswordPathRe.MatchString(path) {
		return "", fmt.Errorf("invalid secret path: %s (want op://vault/item/field)", path)
	}
	v, err := p.client.Resolve(ctx, path)
	if err != nil {
		return "", fmt.Errorf("error resolving secret: %w", err)
	}
	return v, nil
}

// SetSecret always fails: the provider is read-only.
func (*OnePasswordProvider) SetSecret(_ context.Context, _, _ string) error {
	return Err1PasswordReadOnly
}

// DeleteSecret always fails: the provider is read-only.
func (*OnePasswordProvider) DeleteSecret(_ context.Context, _ string) error {
	return Err1PasswordReadOnly
}

// ListSecrets always fails: the gateway resolves specific item paths handed
// to it at tenant-onboarding time, it never enumerates vault contents.
func (*OnePasswordProvider) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	return nil, fmt.Errorf("1password provider does not support listing secrets")
}

// Cleanup is a no-op: the provider owns no gateway-side state.
func (*OnePasswordProvider) Cleanup() error { return nil }

// Capabilities reports read-only support.
func (*OnePasswordProvider) Capabilities() Capabilities {
	return Capabilities{CanRead: true}
}

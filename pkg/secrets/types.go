// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package secrets provides a pluggable facade over where the gateway's
// bootstrap secrets live: the process-wide encryption key (C1) and, for
// the administrative CLI, a tenant's client id/secret/refresh token
// before they are sealed into the store (C2). Per-tenant ciphertexts
// themselves never pass through this package - only the small number of
// bootstrap values needed before encryption is even possible.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is the interface every secrets backend implements.
type Provider interface {
	// GetSecret retrieves the named secret's value.
	GetSecret(ctx context.Context, name string) (string, error)
	// SetSecret stores a secret, if the backend supports writes.
	SetSecret(ctx context.Context, name, value string) error
	// DeleteSecret removes a secret, if the backend supports deletes.
	DeleteSecret(ctx context.Context, name string) error
	// ListSecrets enumerates stored secrets, if the backend supports listing.
	ListSecrets(ctx context.Context) ([]SecretDescription, error)
	// Cleanup releases any resources held by the provider.
	Cleanup() error
	// Capabilities reports which operations the backend actually supports.
	Capabilities() Capabilities
}

// SecretDescription is a non-sensitive summary of a stored secret.
type SecretDescription struct {
	Name string
}

// Capabilities describes what a Provider implementation supports.
type Capabilities struct {
	CanRead    bool
	CanWrite   bool
	CanDelete  bool
	CanList    bool
	CanCleanup bool
}

// IsReadOnly reports whether the provider supports reads but nothing else.
func (c Capabilities) IsReadOnly() bool {
	return c.CanRead && !c.CanWrite && !c.CanDelete
}

// IsReadWrite reports whether the provider supports both reads and writes.
func (c Capabilities) IsReadWrite() bool {
	return c.CanRead && c.CanWrite
}

// String renders a short label for the capability set, used in CLI output.
func (c Capabilities) String() string {
	switch {
	case c.IsReadOnly():
		return "read-only"
	case c.IsReadWrite():
		return "read-write"
	default:
		return "custom"
	}
}

// ProviderType names a secrets backend.
type ProviderType string

// Supported provider types.
const (
	EnvironmentType   ProviderType = "environment"
	OnePasswordType   ProviderType = "1password"
	KeyringType       ProviderType = "keyring"
	EncryptedFileType ProviderType = "encrypted-file"
	NoneType          ProviderType = "none"
)

// ErrUnknownManagerType is returned by CreateSecretProvider for an
// unrecognized ProviderType.
var ErrUnknownManagerType = errors.New("unknown secrets provider type")

// ErrSecretNotFound is wrapped into provider-specific messages so callers
// can still errors.Is against it.
var ErrSecretNotFound = errors.New("secret not found")

// SecretParameter names a secret reference and the environment variable it
// should be materialized under, in the CLI syntax "NAME,target=TARGET".
// Used by the administrative CLI when bootstrapping a tenant's OAuth
// client secret or refresh token from an external secrets backend instead
// of pasting it on the command line.
type SecretParameter struct {
	Name   string
	Target string
}

// ParseSecretParameter parses "NAME,target=TARGET" into a SecretParameter.
func ParseSecretParameter(s string) (SecretParameter, error) {
	if s == "" {
		return SecretParameter{}, fmt.Errorf("secret parameter cannot be empty")
	}

	commaIdx := strings.Index(s, ",")
	if commaIdx < 0 {
		return SecretParameter{}, fmt.Errorf("invalid secret parameter format: %q (want NAME,target=TARGET)", s)
	}

	name := s[:commaIdx]
	rest := s[commaIdx+1:]

	const targetPrefix = "target="
	if !strings.HasPrefix(rest, targetPrefix) {
		return SecretParameter{}, fmt.Errorf("invalid secret parameter format: %q (want NAME,target=TARGET)", s)
	}

	target := strings.TrimPrefix(rest, targetPrefix)
	if name == "" || target == "" {
		return SecretParameter{}, fmt.Errorf("invalid secret parameter format: %q (want NAME,target=TARGET)", s)
	}

	return SecretParameter{Name: name, Target: target}, nil
}

// ToCLIString renders the parameter back to its CLI syntax.
func (p SecretParameter) ToCLIString() string {
	return fmt.Sprintf("%s,target=%s", p.Name, p.Target)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tenant is the read-mostly facade over the persistent store:
// tenant lookup with an in-memory TTL cache, registration with
// credential encryption, and the scope-check used to authorize tool
// calls.
package tenant

import (
	"regexp"
	"time"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

// scopePattern matches "<namespace>.<Resource>.<ACTION>", e.g.
// "ITSM.Requests.READ". The namespace segment is open (it names the
// upstream product area, not a fixed token); the action is closed to
// the five recognized verbs.
var scopePattern = regexp.MustCompile(`^[A-Za-z0-9_]+\.[A-Za-z]+\.(READ|CREATE|UPDATE|DELETE|ALL)$`)

// AdminWildcard, if present in a tenant's allowed scopes, authorizes
// every scope check regardless of the specific scope requested.
const AdminWildcard = "*"

// DefaultCacheTTL is how long a looked-up tenant stays cached before
// the next GetTenant call re-reads and re-decrypts it.
const DefaultCacheTTL = 300 * time.Second

// TenantWithConfig is the immutable, fully-resolved view of a tenant:
// its record plus its decrypted OAuth credentials and scopes. Callers
// never see ciphertext.
type TenantWithConfig struct {
	Tenant        store.Tenant
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	Scopes        []string
	InstanceURL   string
	SchemeVersion int
}

// RegisterRequest is the administrative input to Register: plaintext
// credentials and the metadata needed to validate and seal them.
type RegisterRequest struct {
	Name         string
	Region       string
	Tier         store.RateTier
	Metadata     map[string]string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scopes       []string
	InstanceURL  string
}

// ValidateScopes checks every requested scope string against
// scopePattern, returning the first invalid one found (empty string if
// all are valid).
func ValidateScopes(scopes []string) string {
	for _, s := range scopes {
		if !scopePattern.MatchString(s) {
			return s
		}
	}
	return ""
}

// Metadata bounds: the opaque key/value map a tenant may attach is
// capped so neither a malicious nor careless caller can turn it into
// unbounded storage.
const (
	MaxMetadataKeyBytes   = 64
	MaxMetadataValueBytes = 4096
	MaxMetadataEntries    = 32
)

// ValidateMetadata checks metadata against the bounds every tenant's
// opaque key/value map must satisfy, returning a description of the
// first violation found (empty string if none).
func ValidateMetadata(metadata map[string]string) string {
	if len(metadata) > MaxMetadataEntries {
		return "metadata has more than the allowed entries"
	}
	for k, v := range metadata {
		if len(k) > MaxMetadataKeyBytes {
			return "metadata key exceeds the allowed size: " + k
		}
		if len(v) > MaxMetadataValueBytes {
			return "metadata value for key " + k + " exceeds the allowed size"
		}
	}
	return ""
}

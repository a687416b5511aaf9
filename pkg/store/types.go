// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store is the gateway's persistent store: tenants, their OAuth
// configuration, cached tokens, and the refresh audit trail, all backed
// by a single sqlite database shared by every process instance.
package store

import "time"

// TenantStatus is the lifecycle state of a Tenant.
type TenantStatus string

// Tenant lifecycle states.
const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantInactive  TenantStatus = "inactive"
)

// RateTier selects a tenant's numeric request/refresh budgets.
type RateTier string

// Supported rate tiers, in ascending order of budget.
const (
	TierBasic      RateTier = "basic"
	TierStandard   RateTier = "standard"
	TierPremium    RateTier = "premium"
	TierEnterprise RateTier = "enterprise"
)

// Tenant is the unit of isolation: one registered principal owning one
// upstream ITSM account and one OAuth identity.
type Tenant struct {
	ID        string
	Name      string
	Region    string
	Status    TenantStatus
	Tier      RateTier
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OAuthConfig is 1:1 with a Tenant: its encrypted OAuth credentials and
// the scopes it's permitted to use.
type OAuthConfig struct {
	TenantID        string
	ClientIDEnc     string
	ClientSecretEnc string
	RefreshTokenEnc string
	Scopes          []string
	InstanceURL     string
	SchemeVersion   int
}

// StoredToken is 1:1 with a Tenant and may be absent: the cached
// access/refresh token pair and its metadata.
type StoredToken struct {
	TenantID      string
	AccessEnc     string
	RefreshEnc    string
	ExpiresAt     time.Time
	Scopes        []string
	LastRefreshed time.Time
	RefreshCount  int
}

// RefreshOutcome is the terminal result of one refresh attempt.
type RefreshOutcome string

// Possible RefreshAudit outcomes.
const (
	OutcomeSuccess RefreshOutcome = "success"
	OutcomeFailure RefreshOutcome = "failure"
)

// RefreshAudit is one append-only row recording a refresh attempt,
// forming the forensic trail and the coordinator's cold-start recovery
// source.
type RefreshAudit struct {
	ID             int64
	TenantID       string
	At             time.Time
	Outcome        RefreshOutcome
	Classification string
	InstanceID     string
}

// SecurityEvent names the kind of admin-visible security incident a
// SecurityAudit row records. auto_suspend is currently the only one
// the gateway raises.
type SecurityEvent string

// Recognized SecurityAudit events.
const (
	SecurityEventAutoSuspend SecurityEvent = "auto_suspend"
)

// SecurityAudit is one append-only row recording a security-relevant
// action the gateway took on a tenant without an operator in the loop,
// distinct from RefreshAudit's routine refresh-outcome trail.
type SecurityAudit struct {
	ID       int64
	TenantID string
	At       time.Time
	Event    SecurityEvent
	Cause    string
}

// TokenStatistics summarizes a tenant's token/refresh history.
type TokenStatistics struct {
	TenantID          string
	RefreshCount       int
	LastRefreshed     time.Time
	ExpiresAt         time.Time
	SuccessfulRefreshes int64
	FailedRefreshes     int64
}

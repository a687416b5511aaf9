// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit enforces the gateway's hard caps on refresh
// frequency and upstream request volume: a minimum spacing between
// refreshes, a rolling-window cap on refresh count, and per-tier
// request budgets, all per tenant.
package ratelimit

import (
	"context"
	"time"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

// RefreshPolicy bounds refresh cadence for a tenant: a minimum spacing
// between attempts and a rolling-window cap on how many are allowed.
// Both coordinators take one as a constructor argument instead of
// hard-coding it, so the operator-facing config knobs actually reach
// the enforcement path.
type RefreshPolicy struct {
	MinInterval time.Duration
	Window      time.Duration
	WindowCap   int
}

// DefaultRefreshPolicy is the empirically-derived cadence from spec: a
// 3-minute minimum spacing and 10 refreshes per rolling 10-minute
// window. Config defaults to this; operators may override it.
var DefaultRefreshPolicy = RefreshPolicy{
	MinInterval: 3 * time.Minute,
	Window:      10 * time.Minute,
	WindowCap:   10,
}

// Decision is the outcome of a gate check: either the action is
// allowed, or it is denied with the duration the caller should wait
// before retrying.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Allow is the always-allowed decision.
var Allow = Decision{Allowed: true}

// Deny builds a denied decision carrying a retry-after duration.
func Deny(retryAfter time.Duration) Decision {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// Coordinator gates refresh attempts and upstream request volume per
// tenant. StoreCoordinator is the canonical, single-instance
// implementation; RedisCoordinator is the optional multi-instance one.
// Both share this interface so callers (the token manager, the
// upstream client) never know which is active.
type Coordinator interface {
	// AllowRefresh checks the minimum-interval and windowed-cap rules
	// for tenantID, without recording anything.
	AllowRefresh(ctx context.Context, tenantID string) (Decision, error)

	// AllowForcedRefresh checks only the windowed-cap rule, skipping
	// the minimum-interval spacing check - used by the administrative
	// force-refresh override, which bypasses cadence but never the cap.
	AllowForcedRefresh(ctx context.Context, tenantID string) (Decision, error)

	// RecordRefresh registers a completed refresh attempt at `at`,
	// so it counts against future AllowRefresh checks.
	RecordRefresh(ctx context.Context, tenantID string, at time.Time) error

	// ReserveRequest checks and consumes one unit of tenantID's
	// per-tier request budget.
	ReserveRequest(ctx context.Context, tenantID string, tier store.RateTier) (Decision, error)
}

// TierBudget is a rate tier's numeric request budget.
type TierBudget struct {
	PerMinute int
	PerHour   int
	Burst     int
}

// TierBudgets holds the illustrative defaults from spec: tenant tier
// selects which budget applies. Burst equals the per-minute rate,
// giving each tenant room for one minute's worth of traffic in a
// single instant before the sustained rate takes over - spec leaves
// the exact burst value unspecified, so this is a reasonable default,
// not a contractual number like the refresh cadence.
var TierBudgets = map[store.RateTier]TierBudget{
	store.TierBasic:      {PerMinute: 60, PerHour: 1000, Burst: 60},
	store.TierStandard:   {PerMinute: 120, PerHour: 3000, Burst: 120},
	store.TierPremium:    {PerMinute: 300, PerHour: 10000, Burst: 300},
	store.TierEnterprise: {PerMinute: 600, PerHour: 30000, Burst: 600},
}

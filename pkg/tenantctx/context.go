// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tenantctx carries the read-only, per-request tenant record
// through every asynchronous call chain. Per the explicit redesign
// away from ambient task-locals: a TenantContext is constructed once
// per session/request and passed as the first argument down every call
// that touches the store or the upstream - there is no "current
// tenant" retrievable from anywhere else.
package tenantctx

import (
	"context"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/ratelimit"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
)

// TenantContext embeds context.Context so it satisfies the standard
// interface directly - any function signature that reads `ctx
// context.Context` accepts one unchanged - while carrying the
// immutable tenant facts a request needs without a second lookup.
type TenantContext struct {
	context.Context

	TenantID    string
	TenantName  string
	Region      string
	InstanceURL string
	Scopes      []string
	Tier        store.RateTier
	Budget      ratelimit.TierBudget
}

// New builds a TenantContext from a resolved tenant view, deriving the
// tier's request budget so callers never need a second lookup.
func New(ctx context.Context, twc *tenant.TenantWithConfig) *TenantContext {
	return &TenantContext{
		Context:     ctx,
		TenantID:    twc.Tenant.ID,
		TenantName:  twc.Tenant.Name,
		Region:      twc.Tenant.Region,
		InstanceURL: twc.InstanceURL,
		Scopes:      twc.Scopes,
		Tier:        twc.Tenant.Tier,
		Budget:      ratelimit.TierBudgets[twc.Tenant.Tier],
	}
}

// WithCancel derives a cancellable TenantContext carrying the same
// tenant facts, for tearing down one session's in-flight work without
// affecting any other session or the tenant's shared refresh state.
func WithCancel(parent *TenantContext) (*TenantContext, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent.Context)
	child := *parent
	child.Context = ctx
	return &child, cancel
}

// Rebind attaches ctx as parent's cancellation source while keeping
// every tenant fact unchanged - used where a session's own derived
// context (not the one TenantContext was originally built with) must
// govern cancellation for a single dispatched call.
func Rebind(parent *TenantContext, ctx context.Context) *TenantContext {
	child := *parent
	child.Context = ctx
	return &child
}

// HasScope reports whether requiredScope is authorized under this
// tenant's allowed scopes.
func (t *TenantContext) HasScope(requiredScope string) bool {
	return tenant.ValidateScope(t.Scopes, requiredScope)
}

// requireTenantContext is the fail-fast guard spec §4.8 calls for:
// any function requiring tenant scope but receiving a bare
// context.Context is a programming error, not a recoverable one.
func requireTenantContext(ctx context.Context) *TenantContext {
	tc, ok := ctx.(*TenantContext)
	if !ok {
		panic("tenantctx: function requires a *TenantContext, got a bare context.Context")
	}
	return tc
}

// From extracts the *TenantContext from ctx, panicking if ctx is not
// one - use at the entry point of any function whose contract requires
// tenant scope (touches the store or the upstream).
func From(ctx context.Context) *TenantContext {
	return requireTenantContext(ctx)
}

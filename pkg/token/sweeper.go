// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"time"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/logger"
)

// RunSweeper runs the background refresh sweeper until ctx is
// canceled: every interval, it proactively refreshes any active
// tenant's token that is within RefreshMargin of expiry. It never
// bypasses the rate coordinator or the circuit breaker - a denial
// simply waits for the next tick.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

// Sweep runs one sweep pass immediately, for callers (tests, an admin
// "refresh now" command) that don't want to wait for the ticker.
func (m *Manager) Sweep(ctx context.Context) {
	m.sweepOnce(ctx)
}

func (m *Manager) sweepOnce(ctx context.Context) {
	tenants, err := m.store.ListActiveTenants(ctx)
	if err != nil {
		logger.Errorw("sweeper failed to list active tenants", "error", err)
		return
	}

	horizon := time.Now().Add(RefreshMargin)
	for _, t := range tenants {
		tok, err := m.store.FindStoredTokenByTenant(ctx, t.ID)
		if err != nil {
			if !gwerrors.IsNotFound(err) {
				logger.Errorw("sweeper failed to load stored token", "tenant_id", t.ID, "error", err)
			}
			continue
		}
		if tok.ExpiresAt.After(horizon) {
			continue
		}

		if _, err := m.sweepRefresh(ctx, t.ID); err != nil {
			if gwerrors.IsRateLimited(err) || gwerrors.IsCircuitOpen(err) {
				continue // deferred to the next tick, per the sweeper's no-bypass contract
			}
			logger.Warnw("sweeper refresh failed", "tenant_id", t.ID, "error", err)
		}
	}
}

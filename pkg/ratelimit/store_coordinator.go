// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

// StoreCoordinator is the canonical, single-process Coordinator: it
// keeps refresh windows in memory, recovering them from the store's
// audit trail on first touch per tenant (the "cold start" case), and
// keeps request budgets purely in memory since those never need to
// survive a restart.
type StoreCoordinator struct {
	store  *store.Store
	policy RefreshPolicy

	mu             sync.Mutex // guards refreshWindows and loaded
	refreshWindows map[string]*slidingWindow
	loaded         map[string]bool

	budgetMu sync.Mutex // guards budgets
	budgets  map[string]*tenantBudget
}

type tenantBudget struct {
	minute  *slidingWindow
	hour    *slidingWindow
	limiter *rate.Limiter
}

// NewStoreCoordinator builds a Coordinator backed by s, enforcing policy.
func NewStoreCoordinator(s *store.Store, policy RefreshPolicy) *StoreCoordinator {
	return &StoreCoordinator{
		store:          s,
		policy:         policy,
		refreshWindows: make(map[string]*slidingWindow),
		loaded:         make(map[string]bool),
		budgets:        make(map[string]*tenantBudget),
	}
}

// AllowRefresh enforces the minimum-interval and windowed-cap rules.
func (c *StoreCoordinator) AllowRefresh(ctx context.Context, tenantID string) (Decision, error) {
	return c.checkRefresh(ctx, tenantID, true)
}

// AllowForcedRefresh enforces only the windowed-cap rule.
func (c *StoreCoordinator) AllowForcedRefresh(ctx context.Context, tenantID string) (Decision, error) {
	return c.checkRefresh(ctx, tenantID, false)
}

func (c *StoreCoordinator) checkRefresh(ctx context.Context, tenantID string, enforceMinInterval bool) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, err := c.windowLocked(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}

	now := time.Now()
	count := w.prune(now)

	if enforceMinInterval {
		if last, ok := w.latest(); ok {
			if elapsed := now.Sub(last); elapsed < c.policy.MinInterval {
				return Deny(c.policy.MinInterval - elapsed), nil
			}
		}
	}

	if count >= c.policy.WindowCap {
		oldest, _ := w.oldest()
		return Deny(oldest.Add(c.policy.Window).Sub(now)), nil
	}

	return Allow, nil
}

// RecordRefresh registers a completed refresh so it counts against
// future checks.
func (c *StoreCoordinator) RecordRefresh(ctx context.Context, tenantID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, err := c.windowLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	w.record(at)
	return nil
}

// windowLocked returns tenantID's in-memory window, loading it from
// the store's audit trail the first time this tenant is touched.
// Callers must hold c.mu.
func (c *StoreCoordinator) windowLocked(ctx context.Context, tenantID string) (*slidingWindow, error) {
	w, ok := c.refreshWindows[tenantID]
	if !ok {
		w = newSlidingWindow(c.policy.Window)
		c.refreshWindows[tenantID] = w
	}
	if c.loaded[tenantID] {
		return w, nil
	}

	audits, err := c.store.QueryRefreshAuditsWithinWindow(ctx, tenantID, time.Now().Add(-c.policy.Window))
	if err != nil {
		return nil, err
	}
	sort.Slice(audits, func(i, j int) bool { return audits[i].At.Before(audits[j].At) })
	for _, a := range audits {
		if a.Outcome == store.OutcomeSuccess {
			w.record(a.At)
		}
	}
	c.loaded[tenantID] = true
	return w, nil
}

// ReserveRequest checks and consumes one unit of tenantID's per-tier
// request budget: a token-bucket burst limiter plus two sliding
// sustained-rate counters (per-minute, per-hour).
func (c *StoreCoordinator) ReserveRequest(_ context.Context, tenantID string, tier store.RateTier) (Decision, error) {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()

	b := c.budgetForLocked(tenantID, tier)
	now := time.Now()

	b.minute.prune(now)
	b.hour.prune(now)

	budget := TierBudgets[tier]
	if n := len(b.minute.times); n >= budget.PerMinute {
		oldest, _ := b.minute.oldest()
		return Deny(oldest.Add(time.Minute).Sub(now)), nil
	}
	if n := len(b.hour.times); n >= budget.PerHour {
		oldest, _ := b.hour.oldest()
		return Deny(oldest.Add(time.Hour).Sub(now)), nil
	}

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return Deny(time.Second), nil
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.Cancel()
		return Deny(wait), nil
	}

	b.minute.record(now)
	b.hour.record(now)
	return Allow, nil
}

func (c *StoreCoordinator) budgetForLocked(tenantID string, tier store.RateTier) *tenantBudget {
	b, ok := c.budgets[tenantID]
	if ok {
		return b
	}

	budget := TierBudgets[tier]
	b = &tenantBudget{
		minute:  newSlidingWindow(time.Minute),
		hour:    newSlidingWindow(time.Hour),
		limiter: rate.NewLimiter(rate.Limit(budget.PerMinute)/60, budget.Burst),
	}
	c.budgets[tenantID] = b
	return b
}

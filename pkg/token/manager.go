// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token is the gateway's most central component: it keeps one
// valid access token per tenant, refreshing through the identity
// provider only when necessary and never more than one refresh in
// flight per tenant at a time, honoring the circuit breaker and the
// rate coordinator on every attempt.
package token

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/breaker"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/crypto"
	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/logger"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/metrics"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/ratelimit"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/retry"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
)

// SafetyMargin is subtracted from a freshly refreshed token's
// expires_in when computing its stored absolute expiry, and is also
// the threshold a cached token must clear to be considered valid.
const SafetyMargin = 60 * time.Second

// RefreshMargin is how far ahead of expiry the background sweeper
// proactively refreshes a tenant's token.
const RefreshMargin = 5 * time.Minute

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 60 * time.Second

// Manager holds the per-tenant refresh state: a cached token (the
// store is the cache of record), a circuit breaker, and a singleflight
// group standing in for the "async mutex" that collapses concurrent
// refreshers onto one in-flight call.
type Manager struct {
	store       *store.Store
	crypto      *crypto.Service
	tenants     *tenant.Registry
	coordinator ratelimit.Coordinator
	refresher   Refresher
	retryPolicy retry.Policy

	breakersMu sync.Mutex
	breakers   map[string]*breaker.Breaker

	sf singleflight.Group
}

// New builds a Manager.
func New(s *store.Store, cs *crypto.Service, reg *tenant.Registry, coord ratelimit.Coordinator, refresher Refresher) *Manager {
	return &Manager{
		store:       s,
		crypto:      cs,
		tenants:     reg,
		coordinator: coord,
		refresher:   refresher,
		retryPolicy: retry.DefaultPolicy,
		breakers:    make(map[string]*breaker.Breaker),
	}
}

func (m *Manager) breakerFor(tenantID string) *breaker.Breaker {
	m.breakersMu.Lock()
	defer m.breakersMu.Unlock()

	b, ok := m.breakers[tenantID]
	if ok {
		return b
	}
	b = breaker.New(breaker.Settings{
		Name:              tenantID,
		FailureThreshold:  3,
		OpenTimeout:       30 * time.Second,
		HalfOpenSuccesses: 1,
		OnStateChange: func(name string, from, to breaker.State) {
			logger.Infow("refresh circuit breaker state change", "tenant_id", name, "from", from, "to", to)
		},
	})
	m.breakers[tenantID] = b
	return b
}

// AccessToken returns a valid access token for tenantID, refreshing it
// first if the cached one is missing or inside its safety margin.
// Concurrent callers for the same tenant collapse onto a single
// in-flight refresh via singleflight.
func (m *Manager) AccessToken(ctx context.Context, tenantID string) (string, error) {
	if tok, err := m.validCachedToken(ctx, tenantID); err == nil {
		return tok, nil
	} else if !gwerrors.IsNotFound(err) {
		return "", err
	}

	v, err, _ := m.sf.Do("refresh:"+tenantID, func() (any, error) {
		return m.refresh(ctx, tenantID, false, false)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForceRefresh is the administrative override: it bypasses the
// minimum-interval spacing rule but still honors the circuit breaker
// and the windowed refresh cap.
func (m *Manager) ForceRefresh(ctx context.Context, tenantID string) (string, error) {
	v, err, _ := m.sf.Do("refresh:"+tenantID, func() (any, error) {
		return m.refresh(ctx, tenantID, true, true)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// sweepRefresh is the sweeper's entry point: unlike AccessToken, it
// skips the cheap cached-token short-circuit, since the sweeper already
// decided (against RefreshMargin, a wider window than the token's own
// safety margin) that this tenant is due - otherwise a token still
// inside its safety margin but within RefreshMargin would never
// actually get proactively refreshed.
func (m *Manager) sweepRefresh(ctx context.Context, tenantID string) (string, error) {
	v, err, _ := m.sf.Do("refresh:"+tenantID, func() (any, error) {
		return m.refresh(ctx, tenantID, false, true)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// validCachedToken returns the decrypted access token if a valid,
// unexpired StoredToken exists for tenantID.
func (m *Manager) validCachedToken(ctx context.Context, tenantID string) (string, error) {
	tok, err := m.store.FindValidStoredTokenByTenant(ctx, tenantID, time.Now().Add(SafetyMargin))
	if err != nil {
		return "", err
	}

	twc, err := m.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return m.crypto.Decrypt(crypto.Sealed(tok.AccessEnc), twc.Tenant.Name)
}

// refresh implements the C7 refresh algorithm: re-check validity under
// the singleflight key, consult the rate coordinator, execute the
// provider call under the circuit breaker wrapped in the retry loop,
// and persist the outcome.
func (m *Manager) refresh(ctx context.Context, tenantID string, forced, skipValidCheck bool) (string, error) {
	if !skipValidCheck {
		if tok, err := m.validCachedToken(ctx, tenantID); err == nil {
			return tok, nil
		}
	}

	twc, err := m.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if twc.Tenant.Status != store.TenantActive {
		return "", gwerrors.NewPermissionDeniedError("tenant is not active: "+twc.Tenant.Name, nil)
	}
	if twc.RefreshToken == "" {
		m.audit(ctx, tenantID, store.OutcomeFailure, "no_refresh_token")
		return "", gwerrors.NewNoRefreshTokenError("tenant has no refresh token on file: "+twc.Tenant.Name, nil)
	}

	var decision ratelimit.Decision
	if forced {
		decision, err = m.coordinator.AllowForcedRefresh(ctx, tenantID)
	} else {
		decision, err = m.coordinator.AllowRefresh(ctx, tenantID)
	}
	if err != nil {
		return "", err
	}
	if !decision.Allowed {
		metrics.RateLimitDeniedTotal.WithLabelValues(tenantID, "refresh").Inc()
		return "", gwerrors.NewRateLimited("refresh rate limit exceeded", decision.RetryAfter)
	}

	b := m.breakerFor(tenantID)
	cfg := oauth2.Config{
		ClientID:     twc.ClientID,
		ClientSecret: twc.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenEndpoint(twc.InstanceURL)},
	}

	newTok, err := breaker.Execute(ctx, b, func(ctx context.Context) (*oauth2.Token, error) {
		return retry.Do(ctx, m.retryPolicy, func() (*oauth2.Token, error) {
			return m.refresher.Refresh(ctx, cfg, twc.RefreshToken)
		})
	})

	now := time.Now()
	if err != nil {
		classification := classificationOf(err)
		m.audit(ctx, tenantID, store.OutcomeFailure, classification)
		_ = m.coordinator.RecordRefresh(ctx, tenantID, now)

		if gwerrors.IsPermanent(err) {
			m.suspendForSecurity(ctx, tenantID, twc, classification)
		}
		// Preserve the original classification (Permanent, Transient,
		// CircuitOpen, ...) for callers deciding how to surface the
		// failure; only an error this package can't classify at all
		// gets wrapped as Internal.
		if _, ok := gwerrors.AsError(err); ok {
			return "", err
		}
		return "", gwerrors.NewInternalError("token refresh failed", err)
	}

	rotatedRefreshToken := twc.RefreshToken
	if newTok.RefreshToken != "" {
		rotatedRefreshToken = newTok.RefreshToken
	}

	accessEnc, err := m.crypto.Encrypt(newTok.AccessToken, twc.Tenant.Name)
	if err != nil {
		return "", err
	}
	refreshEnc, err := m.crypto.Encrypt(rotatedRefreshToken, twc.Tenant.Name)
	if err != nil {
		return "", err
	}

	expiresAt := tokenExpiry(newTok, now)

	err = m.store.UpsertStoredToken(ctx, &store.StoredToken{
		TenantID:      tenantID,
		AccessEnc:     string(accessEnc),
		RefreshEnc:    string(refreshEnc),
		ExpiresAt:     expiresAt,
		Scopes:        twc.Scopes,
		LastRefreshed: now,
	}, &store.RefreshAudit{
		TenantID: tenantID, At: now, Outcome: store.OutcomeSuccess, Classification: "ok",
	})
	if err != nil {
		return "", err
	}
	if err := m.coordinator.RecordRefresh(ctx, tenantID, now); err != nil {
		return "", err
	}
	metrics.TokenRefreshesTotal.WithLabelValues(tenantID, string(store.OutcomeSuccess)).Inc()

	return newTok.AccessToken, nil
}

// RunSweeper blocks, scanning every active tenant on interval and
// proactively refreshing any whose cached token has no entry or expires
// within leadTime. It returns when ctx is canceled. Failures are logged
// and skipped - a single tenant's refresh trouble must never stall the
// sweep of the rest.
func (m *Manager) RunSweeper(ctx context.Context, interval, leadTime time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx, leadTime)
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context, leadTime time.Duration) {
	tenants, err := m.store.ListActiveTenants(ctx)
	if err != nil {
		logger.Errorw("sweeper failed to list active tenants", "error", err)
		return
	}

	deadline := time.Now().Add(leadTime)
	for _, t := range tenants {
		due, err := m.dueForSweep(ctx, t.ID, deadline)
		if err != nil {
			logger.Errorw("sweeper failed to check tenant token", "tenant_id", t.ID, "error", err)
			continue
		}
		if !due {
			continue
		}
		if _, err := m.sweepRefresh(ctx, t.ID); err != nil {
			logger.Warnw("sweeper refresh failed", "tenant_id", t.ID, "error", err)
		}
	}
}

// dueForSweep reports whether tenantID's cached token is missing or
// expires before deadline.
func (m *Manager) dueForSweep(ctx context.Context, tenantID string, deadline time.Time) (bool, error) {
	tok, err := m.store.FindStoredTokenByTenant(ctx, tenantID)
	if gwerrors.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return tok.ExpiresAt.Before(deadline), nil
}

func (m *Manager) audit(ctx context.Context, tenantID string, outcome store.RefreshOutcome, classification string) {
	_ = m.store.AppendRefreshAudit(ctx, &store.RefreshAudit{
		TenantID: tenantID, At: time.Now(), Outcome: outcome, Classification: classification,
	})
	metrics.TokenRefreshesTotal.WithLabelValues(tenantID, string(outcome)).Inc()
}

// suspendForSecurity auto-suspends a tenant whose refresh failed with a
// Permanent classification (invalid_grant, token_revoked) and writes an
// admin-visible security audit row distinct from the routine refresh
// audit trail.
func (m *Manager) suspendForSecurity(ctx context.Context, tenantID string, twc *tenant.TenantWithConfig, classification string) {
	t := twc.Tenant
	t.Status = store.TenantSuspended
	t.UpdatedAt = time.Now()
	audit := &store.SecurityAudit{
		TenantID: tenantID, At: t.UpdatedAt, Event: store.SecurityEventAutoSuspend, Cause: classification,
	}
	if err := m.store.SuspendTenantForSecurity(ctx, &t, audit); err != nil {
		logger.Errorw("failed to auto-suspend tenant after permanent refresh failure", "tenant_id", tenantID, "error", err)
		return
	}
	logger.Warnw("tenant auto-suspended after permanent refresh failure",
		"tenant_id", tenantID, "classification", classification)
}

func classificationOf(err error) string {
	switch {
	case gwerrors.IsPermanent(err):
		return "permanent"
	case gwerrors.IsNoRefreshToken(err):
		return "no_refresh_token"
	case gwerrors.IsRateLimited(err):
		return "rate_limited"
	case gwerrors.IsUpstream5xx(err):
		return "upstream_5xx"
	case gwerrors.IsTransient(err):
		return "transient_exhausted"
	default:
		return "unknown"
	}
}

// tokenExpiry computes a freshly refreshed token's absolute expiry
// with the safety margin applied, preferring the provider's expires_in
// when the decoded Expiry field was left zero.
func tokenExpiry(tok *oauth2.Token, now time.Time) time.Time {
	switch {
	case !tok.Expiry.IsZero():
		return tok.Expiry.Add(-SafetyMargin)
	case tok.ExpiresIn > 0:
		return now.Add(time.Duration(tok.ExpiresIn)*time.Second - SafetyMargin)
	default:
		return now.Add(time.Hour - SafetyMargin)
	}
}

// tokenEndpoint derives a tenant's OAuth2 token endpoint from its
// upstream instance URL. The data model carries one URL per tenant, not
// a separate token endpoint, so the identity provider's token path is
// assumed to live at a conventional location under the same origin.
func tokenEndpoint(instanceURL string) string {
	return instanceURL + "/oauth/v2/token"
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/ratelimit"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/retry"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/upstream"
)

// testPolicy keeps retry-driven tests from sleeping through real
// exponential backoff: one initial attempt plus one fast retry.
var testPolicy = retry.Policy{
	Strategy:     retry.Constant,
	InitialDelay: time.Millisecond,
	MaxAttempts:  2,
	Jitter:       false,
}

func newTestClient(tokens upstream.TokenProvider, coord ratelimit.Coordinator) *upstream.Client {
	return upstream.NewWithPolicy(tokens, coord, testPolicy)
}

type fakeCoordinator struct {
	decision ratelimit.Decision
	err      error
}

func (f fakeCoordinator) AllowRefresh(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Allow, nil
}
func (f fakeCoordinator) AllowForcedRefresh(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Allow, nil
}
func (f fakeCoordinator) RecordRefresh(context.Context, string, time.Time) error { return nil }
func (f fakeCoordinator) ReserveRequest(context.Context, string, store.RateTier) (ratelimit.Decision, error) {
	if f.err != nil {
		return ratelimit.Decision{}, f.err
	}
	return f.decision, nil
}

type fakeTokens struct {
	access       string
	refreshed    string
	refreshCalls int
}

func (f *fakeTokens) AccessToken(context.Context, string) (string, error) { return f.access, nil }
func (f *fakeTokens) ForceRefresh(context.Context, string) (string, error) {
	f.refreshCalls++
	return f.refreshed, nil
}

func testTenantCtx() *tenantctx.TenantContext {
	return tenantctx.New(context.Background(), &tenant.TenantWithConfig{
		Tenant: store.Tenant{
			ID: "t1", Name: "acme", Region: "us-east",
			Status: store.TenantActive, Tier: store.TierStandard,
		},
		Scopes:      []string{"ITSM.Requests.READ"},
		InstanceURL: "placeholder",
	})
}

func withInstanceURL(tc *tenantctx.TenantContext, url string) *tenantctx.TenantContext {
	tc.InstanceURL = url
	return tc
}

func TestClient_Do_SuccessAttachesBearerToken(t *testing.T) {
	t.Parallel()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{access: "tok-1"}
	c := newTestClient(tokens, fakeCoordinator{decision: ratelimit.Allow})
	tc := withInstanceURL(testTenantCtx(), srv.URL)

	resp, err := c.Do(tc, http.MethodGet, "/api/v3/requests", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, 0, tokens.refreshCalls)
}

func TestClient_Do_DeniedBudgetIsRateLimited(t *testing.T) {
	t.Parallel()
	c := newTestClient(&fakeTokens{}, fakeCoordinator{decision: ratelimit.Deny(30 * time.Second)})
	tc := testTenantCtx()

	_, err := c.Do(tc, http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.True(t, gwerrors.IsRateLimited(err))
}

func TestClient_Do_401TriggersExactlyOneForceRefreshAndRetry(t *testing.T) {
	t.Parallel()
	var seenAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = append(seenAuth, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer refreshed" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{access: "stale", refreshed: "refreshed"}
	c := newTestClient(tokens, fakeCoordinator{decision: ratelimit.Allow})
	tc := withInstanceURL(testTenantCtx(), srv.URL)

	resp, err := c.Do(tc, http.MethodGet, "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, tokens.refreshCalls)
	assert.Equal(t, []string{"Bearer stale", "Bearer refreshed"}, seenAuth)
}

func TestClient_Do_SecondConsecutive401IsPermanent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{access: "stale", refreshed: "still-bad"}
	c := newTestClient(tokens, fakeCoordinator{decision: ratelimit.Allow})
	tc := withInstanceURL(testTenantCtx(), srv.URL)

	_, err := c.Do(tc, http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.True(t, gwerrors.IsPermanent(err))
	assert.Equal(t, 1, tokens.refreshCalls)
}

func TestClient_Do_429TranslatesRetryAfter(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(&fakeTokens{}, fakeCoordinator{decision: ratelimit.Allow})
	tc := withInstanceURL(testTenantCtx(), srv.URL)

	_, err := c.Do(tc, http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.True(t, gwerrors.IsRateLimited(err))
	retryAfter, ok := gwerrors.RetryAfterOf(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, retryAfter)
}

func TestClient_Do_4xxCarriesRawBodyVerbatim(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"subject is required"}`))
	}))
	defer srv.Close()

	c := newTestClient(&fakeTokens{}, fakeCoordinator{decision: ratelimit.Allow})
	tc := withInstanceURL(testTenantCtx(), srv.URL)

	_, err := c.Do(tc, http.MethodPost, "/x", []byte("{}"))
	require.Error(t, err)
	assert.True(t, gwerrors.IsUpstream4xx(err))

	var gwErr *gwerrors.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Contains(t, gwErr.Details["body"], "subject is required")
}

func TestClient_Do_5xxIsUpstream5xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(&fakeTokens{}, fakeCoordinator{decision: ratelimit.Allow})
	tc := withInstanceURL(testTenantCtx(), srv.URL)

	_, err := c.Do(tc, http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.True(t, gwerrors.IsUpstream5xx(err))
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/token"
)

func tokenServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuth2Refresher_SucceedsOn200(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, http.StatusOK, map[string]any{
		"access_token": "new-access", "refresh_token": "new-refresh", "expires_in": 3600,
	})
	r := token.NewOAuth2Refresher(5 * time.Second)
	cfg := oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

	tok, err := r.Refresh(context.Background(), cfg, "refresh-token")
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
}

func TestOAuth2Refresher_EmptyRefreshTokenIsNoRefreshToken(t *testing.T) {
	t.Parallel()
	r := token.NewOAuth2Refresher(time.Second)
	_, err := r.Refresh(context.Background(), oauth2.Config{}, "")
	require.Error(t, err)
	assert.True(t, gwerrors.IsNoRefreshToken(err))
}

func TestOAuth2Refresher_InvalidGrantIsPermanent(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	r := token.NewOAuth2Refresher(5 * time.Second)
	cfg := oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

	_, err := r.Refresh(context.Background(), cfg, "refresh-token")
	require.Error(t, err)
	assert.True(t, gwerrors.IsPermanent(err))
}

func TestOAuth2Refresher_TemporarilyUnavailableIsTransient(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, http.StatusServiceUnavailable, map[string]any{"error": "temporarily_unavailable"})
	r := token.NewOAuth2Refresher(5 * time.Second)
	cfg := oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

	_, err := r.Refresh(context.Background(), cfg, "refresh-token")
	require.Error(t, err)
	assert.True(t, gwerrors.IsTransient(err))
}

func TestOAuth2Refresher_ServerErrorIsUpstream5xx(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, http.StatusInternalServerError, map[string]any{"error": "server_error"})
	r := token.NewOAuth2Refresher(5 * time.Second)
	cfg := oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

	_, err := r.Refresh(context.Background(), cfg, "refresh-token")
	require.Error(t, err)
	assert.True(t, gwerrors.IsUpstream5xx(err))
}

func TestOAuth2Refresher_TooManyRequestsIsRateLimited(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, http.StatusTooManyRequests, map[string]any{"error": "slow_down"})
	r := token.NewOAuth2Refresher(5 * time.Second)
	cfg := oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}

	_, err := r.Refresh(context.Background(), cfg, "refresh-token")
	require.Error(t, err)
	assert.True(t, gwerrors.IsRateLimited(err))
}

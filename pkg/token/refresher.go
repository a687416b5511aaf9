// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// Refresher exchanges a refresh token for a new access token with a
// tenant's identity provider. Extracted as an interface so the Manager
// can be exercised against a fake in tests without a live OAuth2 server.
type Refresher interface {
	Refresh(ctx context.Context, cfg oauth2.Config, refreshToken string) (*oauth2.Token, error)
}

// OAuth2Refresher performs the standard RFC 6749 refresh_token grant
// directly over HTTP rather than through oauth2.TokenSource, because
// the token endpoint's error body (invalid_grant, temporarily_unavailable)
// needs to survive into the gateway's own error classification instead
// of being collapsed into a generic *oauth2.RetrieveError string.
type OAuth2Refresher struct {
	httpClient *http.Client
}

// NewOAuth2Refresher builds an OAuth2Refresher with the given timeout.
func NewOAuth2Refresher(timeout time.Duration) *OAuth2Refresher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OAuth2Refresher{httpClient: &http.Client{Timeout: timeout}}
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh posts a refresh_token grant to cfg.Endpoint.TokenURL and
// classifies the result into the gateway's typed error vocabulary.
func (r *OAuth2Refresher) Refresh(ctx context.Context, cfg oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, gwerrors.NewNoRefreshTokenError("tenant has no refresh token on file", nil)
	}

	v := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint.TokenURL, strings.NewReader(v.Encode()))
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, gwerrors.NewTransientError("token refresh request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body tokenErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, classifyTokenError(resp.StatusCode, body)
	}

	var tok oauth2.Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, gwerrors.NewInternalError("failed to parse token response", err)
	}
	return &tok, nil
}

// classifyTokenError maps an OAuth2 token endpoint failure onto the
// gateway's stable classification: the same invalid_grant always maps
// to Permanent, 429 is RateLimited, 5xx is Upstream5xx, and
// 408/temporarily_unavailable are Transient.
func classifyTokenError(status int, body tokenErrorResponse) error {
	msg := fmt.Sprintf("token refresh failed with status %d: %s", status, body.Error)

	switch body.Error {
	case "invalid_grant", "unauthorized_client":
		return gwerrors.NewPermanentError(msg, nil)
	case "temporarily_unavailable":
		return gwerrors.NewTransientError(msg, nil)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return gwerrors.NewRateLimited(msg, 0)
	case status == http.StatusRequestTimeout:
		return gwerrors.NewTransientError(msg, nil)
	case status >= 500:
		return gwerrors.NewUpstream5xxError(msg, nil)
	case status >= 400:
		return gwerrors.NewPermanentError(msg, nil)
	default:
		return gwerrors.NewTransientError(msg, nil)
	}
}

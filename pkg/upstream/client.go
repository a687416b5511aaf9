// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream is the thin HTTP client every tool invocation routes
// through: it attaches a bearer token from the token manager, enforces
// the tenant's request budget, retries transient/5xx failures under
// the shared backoff policy, and translates upstream responses into
// the gateway's typed error vocabulary. It never parses or interprets
// the ITSM payload itself - only status codes and the Retry-After
// header.
package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/metrics"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/ratelimit"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/retry"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tracing"
)

var tracer = otel.Tracer(tracing.ServiceTracerName)

// DefaultTimeout bounds a single upstream round trip.
const DefaultTimeout = 30 * time.Second

// TokenProvider is the slice of the token manager the client needs:
// a cached or freshly refreshed access token, and a one-shot
// administrative bypass for the single 401-triggered retry.
type TokenProvider interface {
	AccessToken(ctx context.Context, tenantID string) (string, error)
	ForceRefresh(ctx context.Context, tenantID string) (string, error)
}

// Client is the upstream HTTP client, bound to one token provider and
// rate coordinator shared across all tenants.
type Client struct {
	http        *http.Client
	tokens      TokenProvider
	coordinator ratelimit.Coordinator
	retryPolicy retry.Policy
}

// New builds a Client with DefaultTimeout and the shared default retry
// policy for transient/5xx failures.
func New(tokens TokenProvider, coordinator ratelimit.Coordinator) *Client {
	return NewWithPolicy(tokens, coordinator, retry.DefaultPolicy)
}

// NewWithPolicy is New with an explicit retry policy, for callers (and
// tests) that need a different attempt budget than the shared default.
func NewWithPolicy(tokens TokenProvider, coordinator ratelimit.Coordinator, policy retry.Policy) *Client {
	return &Client{
		http:        &http.Client{Timeout: DefaultTimeout},
		tokens:      tokens,
		coordinator: coordinator,
		retryPolicy: policy,
	}
}

// Response is the result of a successful upstream call: the raw body
// and status, left uninterpreted for the caller.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Do issues method/path (path resolved against tc.InstanceURL) with
// body as the request payload, attaching the tenant's bearer token and
// applying its request budget. On a 401 it force-refreshes exactly
// once and retries with the new token; on a transient network error or
// a 5xx it retries under the shared backoff policy (never more than
// once per attempt for the 401 case, since a second 401 means the
// refreshed token itself was rejected). body is accepted as a byte
// slice rather than an io.Reader so a retried attempt can replay it.
func (c *Client) Do(tc *tenantctx.TenantContext, method, path string, body []byte) (*Response, error) {
	ctx, span := tracer.Start(tc, "upstream.request")
	span.SetAttributes(attribute.String("http.method", method), attribute.String("tenant.id", tc.TenantID))
	defer span.End()
	tc = tenantctx.Rebind(tc, ctx)

	if decision, err := c.coordinator.ReserveRequest(tc, tc.TenantID, tc.Tier); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	} else if !decision.Allowed {
		metrics.RateLimitDeniedTotal.WithLabelValues(tc.TenantID, "request").Inc()
		err := gwerrors.NewRateLimited("tenant request budget exhausted", decision.RetryAfter)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := retry.Do(tc, c.retryPolicy, func() (*Response, error) {
		return c.attempt(tc, method, path, body)
	})
	metrics.UpstreamRequestsTotal.WithLabelValues(outcomeClassOf(err)).Inc()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

// outcomeClassOf buckets an upstream call's terminal error (nil on
// success) into the coarse classes metrics reports, without leaking
// the full error-type vocabulary into a high-cardinality label.
func outcomeClassOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case gwerrors.IsUpstream5xx(err):
		return "server_error"
	case gwerrors.IsUpstream4xx(err):
		return "client_error"
	default:
		return "network_error"
	}
}

func (c *Client) attempt(tc *tenantctx.TenantContext, method, path string, body []byte) (*Response, error) {
	token, err := c.tokens.AccessToken(tc, tc.TenantID)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(tc, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.classify(resp)
	}

	token, err = c.tokens.ForceRefresh(tc, tc.TenantID)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(tc, method, path, body, token)
	if err != nil {
		return nil, err
	}
	return c.classify(resp)
}

func (c *Client) send(tc *tenantctx.TenantContext, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(tc, method, tc.InstanceURL+path, reader)
	if err != nil {
		return nil, gwerrors.NewInvalidArgumentError("failed to build upstream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, gwerrors.NewTransientError("upstream request failed", err)
	}
	return resp, nil
}

func (c *Client) classify(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, gwerrors.NewRateLimited("upstream rate limit", retryAfterOf(resp.Header))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, gwerrors.NewPermanentError("upstream rejected the refreshed token", nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, gwerrors.NewUpstream4xx("upstream validation error", map[string]string{"body": string(raw)})
	case resp.StatusCode >= 500:
		return nil, gwerrors.NewUpstream5xxError("upstream server error", nil)
	default:
		return &Response{StatusCode: resp.StatusCode, Body: raw, Header: resp.Header}, nil
	}
}

func retryAfterOf(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		return time.Until(when)
	}
	return 0
}

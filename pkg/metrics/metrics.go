// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the gateway's Prometheus collectors: HTTP
// request counts/latency at the SSE/MCP surface, token refresh
// outcomes, and rate-limit denials. Every collector is registered
// against the default registry at package init via promauto, and
// Handler exposes them for a /metrics scrape.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts every request the SSE/MCP router served,
	// by route, method, and response status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdpgw_http_requests_total",
		Help: "Total HTTP requests served by the gateway, by route, method, and status.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration observes request latency, by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sdpgw_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// TokenRefreshesTotal counts token-manager refresh attempts, by
	// tenant and outcome ("success" or "failure").
	TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdpgw_token_refreshes_total",
		Help: "Total OAuth2 refresh attempts, by tenant id and outcome.",
	}, []string{"tenant_id", "outcome"})

	// RateLimitDeniedTotal counts requests and refreshes rejected by the
	// rate coordinator, by tenant and budget kind.
	RateLimitDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdpgw_rate_limit_denied_total",
		Help: "Total operations denied by the rate-limit coordinator, by tenant id and budget kind.",
	}, []string{"tenant_id", "kind"})

	// UpstreamRequestsTotal counts requests the upstream HTTP client
	// issued to tenant ITSM instances, by outcome class.
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sdpgw_upstream_requests_total",
		Help: "Total upstream ITSM requests, by outcome class (success, client_error, server_error, network_error).",
	}, []string{"outcome"})
)

// Handler exposes the default registry for a Prometheus scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one request's outcome against
// HTTPRequestsTotal and HTTPRequestDuration.
func ObserveHTTPRequest(route, method, status string, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

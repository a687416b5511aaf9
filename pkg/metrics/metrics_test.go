// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/metrics"
)

func TestObserveHTTPRequest_IncrementsCounterAndHistogram(t *testing.T) {
	metrics.ObserveHTTPRequest("/sse", "GET", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	metrics.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sdpgw_http_requests_total")
	assert.Contains(t, body, "sdpgw_http_request_duration_seconds")
}

func TestCollectors_ExposedUnderExpectedNames(t *testing.T) {
	metrics.TokenRefreshesTotal.WithLabelValues("tenant-1", "success").Inc()
	metrics.RateLimitDeniedTotal.WithLabelValues("tenant-1", "request").Inc()
	metrics.UpstreamRequestsTotal.WithLabelValues("success").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	metrics.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "sdpgw_token_refreshes_total")
	assert.Contains(t, body, "sdpgw_rate_limit_denied_total")
	assert.Contains(t, body, "sdpgw_upstream_requests_total")
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sse_test

import (
	"bufio"
	"context"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwcrypto "github.com/PTTG-IT/SDP-MCP-sub003/pkg/crypto"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/sse"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
)

func newHandlerTestServer(t *testing.T) (*httptest.Server, *store.Tenant) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "sdpgw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	key := make([]byte, gwcrypto.KeySize)
	_, err = rand.Read(key)
	require.NoError(t, err)
	cs, err := gwcrypto.NewService(key)
	require.NoError(t, err)

	reg := tenant.New(s, cs, map[string]string{"us-east": "https://us-east.sdpondemand.example.com"})
	tenantRow, err := reg.Register(context.Background(), tenant.RegisterRequest{
		Name: "acme", Region: "us-east", Tier: store.TierStandard,
		ClientID: "ignored", ClientSecret: "secret123", RefreshToken: "refresh-0",
		Scopes: []string{"ITSM.Requests.READ"}, InstanceURL: "https://us-east.sdpondemand.example.com/app",
	})
	require.NoError(t, err)

	mgr := sse.NewManager(time.Hour, time.Hour)
	t.Cleanup(mgr.Stop)

	h := sse.NewHandler(reg, mgr, 600, func(*tenantctx.TenantContext) sse.Dispatcher { return echoDispatcher{} })
	keys := sse.NewAPIKeyChecker([]string{"test-key"})
	ips, err := sse.NewIPAllowList(nil)
	require.NoError(t, err)

	srv := httptest.NewServer(sse.NewRouter(h, keys, ips))
	t.Cleanup(srv.Close)
	return srv, tenantRow
}

func TestServeSSE_HandshakeAndMessageRoundTrip(t *testing.T) {
	t.Parallel()
	srv, tenantRow := newHandlerTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set(sse.TenantClientIDHeader, tenantRow.ID)
	req.Header.Set(sse.TenantClientSecretHeader, "secret123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	sessionID := ""
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "sessionId") {
			sessionID = extractSessionID(line)
			break
		}
	}
	require.NotEmpty(t, sessionID, "expected a connection event carrying a sessionId")

	postResp, err := http.Post(srv.URL+"/messages?sessionId="+sessionID, "application/json", strings.NewReader("hello"))
	require.NoError(t, err)
	defer postResp.Body.Close()
	assert.Equal(t, http.StatusAccepted, postResp.StatusCode)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: echo:hello") {
			return
		}
	}
	t.Fatal("never received the echoed response on the SSE stream")
}

func TestServeSSE_RejectsWrongSecret(t *testing.T) {
	t.Parallel()
	srv, tenantRow := newHandlerTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set(sse.TenantClientIDHeader, tenantRow.ID)
	req.Header.Set(sse.TenantClientSecretHeader, "wrong-secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeMessages_UnknownSessionIs404(t *testing.T) {
	t.Parallel()
	srv, _ := newHandlerTestServer(t)

	resp, err := http.Post(srv.URL+"/messages?sessionId=does-not-exist", "application/json", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newHandlerTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func extractSessionID(sseDataLine string) string {
	const marker = `"sessionId":"`
	i := strings.Index(sseDataLine, marker)
	if i < 0 {
		return ""
	}
	rest := sseDataLine[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sse

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/logger"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
)

const keepaliveInterval = 30 * time.Second

// TenantClientIDHeader and TenantClientSecretHeader name the two
// per-connection credential headers spec §6 requires, leaving their
// exact names to the deployer. The tenant's own ID doubles as its
// client id for handshake lookup: the data model carries no separate
// client-id index, so GetTenant(ctx, clientID) resolves it directly,
// and the presented secret is checked against the decrypted
// ClientSecret recorded at registration.
const (
	TenantClientIDHeader     = "X-Client-Id"
	TenantClientSecretHeader = "X-Client-Secret"
)

// Handler wires the SSE endpoints to a tenant registry, session table,
// and MCP dispatcher.
type Handler struct {
	registry      *tenant.Registry
	sessions      *Manager
	rateLimit     int
	newDispatcher func(tc *tenantctx.TenantContext) Dispatcher
}

// NewHandler builds a Handler. newDispatcher is called once per
// session to bind a Dispatcher to that session's tenant context.
func NewHandler(registry *tenant.Registry, sessions *Manager, rateLimit int, newDispatcher func(tc *tenantctx.TenantContext) Dispatcher) *Handler {
	return &Handler{registry: registry, sessions: sessions, rateLimit: rateLimit, newDispatcher: newDispatcher}
}

// ServeSSE implements GET /sse: authenticates the connection, binds a
// session to a tenant, and streams framed events until the client
// disconnects.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(TenantClientIDHeader)
	clientSecret := r.Header.Get(TenantClientSecretHeader)
	if clientID == "" || clientSecret == "" {
		http.Error(w, "missing client credentials", http.StatusUnauthorized)
		return
	}

	twc, err := h.registry.GetTenant(r.Context(), clientID)
	if err != nil {
		logger.Warnw("sse: handshake failed to resolve tenant", "client_id", clientID, "error", err)
		http.Error(w, "unknown client", http.StatusUnauthorized)
		return
	}
	if subtle.ConstantTimeCompare([]byte(twc.ClientSecret), []byte(clientSecret)) != 1 {
		http.Error(w, "invalid client credentials", http.StatusUnauthorized)
		return
	}
	if twc.Tenant.Status != store.TenantActive {
		http.Error(w, "tenant is not active", http.StatusForbidden)
		return
	}

	flusher, err := GetFlusher(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	tc := tenantctx.New(r.Context(), twc)
	sess := NewSession(sessionID, tc, h.newDispatcher(tc), h.rateLimit, r.RemoteAddr)
	if err := h.sessions.Add(sess); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer h.sessions.Delete(sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go sess.Run(ctx)

	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	connMsg := NewMessage("connection", `{"type":"connection","sessionId":"`+sessionID+`"}`)
	io.WriteString(w, connMsg.ToSSEString())
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			io.WriteString(w, keepaliveComment)
			flusher.Flush()
		case msg, ok := <-sess.Outbound():
			if !ok {
				return
			}
			io.WriteString(w, msg.ToSSEString())
			flusher.Flush()
		}
	}
}

// ServeMessages implements POST /messages?sessionId=...: queues the
// JSON-RPC body onto the session's worker and returns immediately -
// the response, if any, is delivered later on the SSE stream.
func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := sess.Submit(body); err != nil {
		if err == errRateLimited {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "session rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ServeHealth implements GET /health.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Sessions: h.sessions.Count()})
}

// sessionsResponse is the body of GET /sessions.
type sessionsResponse struct {
	Count       int            `json:"count"`
	IPBreakdown map[string]int `json:"ipBreakdown"`
}

// ServeSessions implements the protected GET /sessions introspection
// endpoint.
func (h *Handler) ServeSessions(w http.ResponseWriter, _ *http.Request) {
	breakdown := h.sessions.IPBreakdown()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionsResponse{Count: h.sessions.Count(), IPBreakdown: breakdown})
}

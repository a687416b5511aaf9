// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sse

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the four SSE/MCP endpoints onto a chi router. /sse
// and /sessions require the API key and (if configured) IP allow-list;
// /messages is gated by its opaque sessionId instead, and /health is
// intentionally public for load-balancer probes.
func NewRouter(h *Handler, keys *APIKeyChecker, ips *IPAllowList) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/sse", Instrument("/sse", RequireAPIKeyAndIP(keys, ips, h.ServeSSE)))
	r.Post("/messages", Instrument("/messages", h.ServeMessages))
	r.Get("/health", Instrument("/health", h.ServeHealth))
	r.Get("/sessions", Instrument("/sessions", RequireAPIKeyAndIP(keys, ips, h.ServeSessions)))
	return r
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sse is the session multiplexer: it accepts long-lived
// SSE connections, binds each to a tenant context, and serializes
// POST /messages traffic for that connection onto one cooperative
// writer so JSON-RPC responses are emitted in request order.
package sse

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Message is one SSE event: an `event:`/`data:` field block terminated
// by a blank line, per the SSE wire convention.
type Message struct {
	EventType      string
	Data           string
	TargetClientID string
	CreatedAt      time.Time
}

// NewMessage builds a Message stamped with the current time.
func NewMessage(eventType, data string) *Message {
	return &Message{EventType: eventType, Data: data, CreatedAt: time.Now()}
}

// WithTargetClientID sets the routing hint used by a fan-out sender;
// it is never part of the wire format itself. Returns the receiver for
// chaining.
func (m *Message) WithTargetClientID(clientID string) *Message {
	m.TargetClientID = clientID
	return m
}

// ToSSEString renders m in the `event:`/`data:` framing, splitting
// multi-line payloads across repeated `data:` fields as the SSE spec
// requires.
func (m *Message) ToSSEString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", m.EventType)
	for _, line := range strings.Split(m.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

// keepaliveComment is sent every 30s to hold the connection open
// through intermediaries that time out idle streams.
const keepaliveComment = ": keepalive\n\n"

// SetSSEHeaders sets the three headers an SSE response requires.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// GetFlusher extracts an http.Flusher from w, failing if the
// underlying ResponseWriter doesn't support streaming.
func GetFlusher(w http.ResponseWriter) (http.Flusher, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return f, nil
}

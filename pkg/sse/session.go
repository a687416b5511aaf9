// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenantctx"
)

// Dispatcher handles one MCP JSON-RPC request/notification body and
// returns the encoded response to emit on the session's stream, or nil
// for a notification (no `id`, no response).
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) ([]byte, error)
}

// job is one queued POST /messages body, processed by the session's
// worker in the order it was submitted.
type job struct {
	raw []byte
}

// Session is one long-lived SSE connection bound to a tenant. Incoming
// POSTs are serialized through a single worker so responses are
// emitted in the same order the requests were accepted; the worker's
// output is handed to whatever goroutine is streaming this session's
// SSE body.
type Session struct {
	id  string
	tc  *tenantctx.TenantContext
	dsp Dispatcher

	cancel context.CancelFunc

	jobs chan job
	out  chan *Message

	limiter *rate.Limiter

	mu         sync.Mutex
	created    time.Time
	updated    time.Time
	closed     bool
	remoteAddr string
}

// NewSession builds a Session bound to tc, wired to dsp for request
// dispatch. The caller owns running the worker via Run.
func NewSession(id string, tc *tenantctx.TenantContext, dsp Dispatcher, ratePerMinute int, remoteAddr string) *Session {
	now := time.Now()
	limit := rate.Limit(float64(ratePerMinute) / 60.0)
	return &Session{
		id:         id,
		tc:         tc,
		dsp:        dsp,
		cancel:     func() {}, // replaced by Run
		jobs:       make(chan job, 64),
		out:        make(chan *Message, 64),
		limiter:    rate.NewLimiter(limit, ratePerMinute),
		created:    now,
		updated:    now,
		remoteAddr: remoteAddr,
	}
}

// RemoteAddr returns the client address the session was opened from.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// UpdatedAt returns the last time the session was touched (created, or
// last POST accepted), for idle-timeout eviction.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updated = time.Now()
	s.mu.Unlock()
}

// TenantContext returns the tenant this session is bound to.
func (s *Session) TenantContext() *tenantctx.TenantContext { return s.tc }

// Outbound returns the channel an SSE streaming goroutine should drain
// to write framed events to the client.
func (s *Session) Outbound() <-chan *Message { return s.out }

// Run drives the session's worker until ctx is canceled or Close is
// called: one job at a time, in arrival order, so a single session can
// never interleave two responses.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	closed := s.closed
	s.mu.Unlock()
	if closed {
		cancel() // Close ran before cancel was installed
	}

	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.jobs:
			if !ok {
				return
			}
			s.process(ctx, j)
		}
	}
}

func (s *Session) process(ctx context.Context, j job) {
	resp, err := s.dsp.Dispatch(ctx, j.raw)
	if err != nil || len(resp) == 0 {
		return // notifications, and dispatch-internal failures already logged by the dispatcher
	}
	select {
	case s.out <- NewMessage("message", string(resp)):
	case <-ctx.Done():
	}
}

// errSessionClosed is returned by Submit once the session has been
// torn down (disconnect, idle eviction).
var errSessionClosed = fmt.Errorf("sse: session is closed")

// errRateLimited is returned by Submit when the session's own
// requests/minute cap (independent of the tenant's C4 budget) is
// exceeded.
var errRateLimited = fmt.Errorf("sse: session rate limit exceeded")

// Submit enqueues one POST body for processing, enforcing the
// per-session rate limit and FIFO ordering.
func (s *Session) Submit(raw []byte) error {
	if !s.limiter.Allow() {
		return errRateLimited
	}
	s.touch()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errSessionClosed
	}

	select {
	case s.jobs <- job{raw: raw}:
		return nil
	default:
		return fmt.Errorf("sse: session %s job queue full", s.id)
	}
}

// Close tears down the session: cancels its context (propagating to
// any in-flight upstream call or refresh this session initiated) and
// stops accepting new work. It does not affect a refresh in flight for
// another session of the same tenant - that work outlives the session
// that triggered it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
}

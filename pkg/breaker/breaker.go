// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package breaker wraps sony/gobreaker's generic circuit breaker with
// the gateway's tripping policy: consecutive-failure threshold or
// volume/error-percentage mode, a half-open probe budget, and an
// operator override (reset, force-open, force-closed) surfaced for the
// admin CLI.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// State mirrors gobreaker's three-state machine without leaking the
// dependency's type into callers.
type State string

// Breaker states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Settings parameterizes a Breaker.
type Settings struct {
	// Name identifies the breaker in logs and metrics (typically the
	// tenant ID, since the refresh path trips per tenant).
	Name string

	// FailureThreshold trips the breaker after this many consecutive
	// failures. Ignored when MinRequests > 0 (volume/error-percentage
	// mode takes over).
	FailureThreshold uint32

	// MinRequests and FailureRatio switch the breaker to
	// volume/error-percentage mode: it trips once at least MinRequests
	// requests have been seen in the rolling Interval and the failure
	// ratio among them is >= FailureRatio.
	MinRequests  uint32
	FailureRatio float64

	// OpenTimeout is how long the breaker stays open before allowing a
	// half-open probe.
	OpenTimeout time.Duration

	// HalfOpenSuccesses is how many consecutive successful probes in
	// half-open are required before the breaker closes again.
	HalfOpenSuccesses uint32

	// Interval is the rolling window over which Counts are reset while
	// closed. Zero disables periodic reset (counts only reset on trip).
	Interval time.Duration

	// OnStateChange, if set, is invoked whenever the breaker transitions.
	OnStateChange func(name string, from, to State)
}

// Breaker guards a single tenant's refresh path, opening after
// repeated upstream failures and recovering through a bounded
// half-open probe.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// New builds a Breaker from Settings.
func New(s Settings) *Breaker {
	if s.HalfOpenSuccesses == 0 {
		s.HalfOpenSuccesses = 1
	}

	gst := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenSuccesses,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: readyToTrip(s),
	}
	if s.OnStateChange != nil {
		gst.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, toDomainState(from), toDomainState(to))
		}
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](gst)}
}

func readyToTrip(s Settings) func(counts gobreaker.Counts) bool {
	if s.MinRequests > 0 {
		return func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(c.TotalFailures) / float64(c.Requests)
			return failureRatio >= s.FailureRatio
		}
	}
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return func(c gobreaker.Counts) bool {
		return c.ConsecutiveFailures >= threshold
	}
}

func toDomainState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Execute runs fn under the breaker. When open, it returns a
// CircuitOpen error carrying a retry-after estimate instead of calling
// fn. ctx is accepted for call-site symmetry with the rest of the
// gateway's signatures; gobreaker itself is not context-aware.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, gwerrors.NewCircuitOpen("circuit breaker open", b.OpenTimeoutRemaining())
		}
		return zero, err
	}
	return v.(T), nil
}

// Counts reports a breaker's rolling counters, exposed for admin
// introspection without leaking the wrapped library's type.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	return toDomainState(b.cb.State())
}

// Counts reports the breaker's rolling counters.
func (b *Breaker) Counts() Counts {
	c := b.cb.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// OpenTimeoutRemaining is a best-effort estimate for how long a caller
// should wait before retrying while the breaker is open. gobreaker
// does not expose the open-since timestamp and this package does not
// track it, so this always returns 0.
func (b *Breaker) OpenTimeoutRemaining() time.Duration {
	return 0
}

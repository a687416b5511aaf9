// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package retry implements the gateway's shared backoff policy: the
// refresh path and the upstream HTTP client both retry transient
// failures under the same exponential/linear/constant strategies with
// optional jitter, classifying errors as retryable or permanent before
// ever entering the loop.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// Strategy selects the delay curve between attempts.
type Strategy string

// Supported backoff strategies.
const (
	Exponential Strategy = "exponential"
	Linear      Strategy = "linear"
	Constant    Strategy = "constant"
)

// Policy parameterizes a retry loop.
type Policy struct {
	Strategy     Strategy
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	MaxAttempts  uint
	Jitter       bool
}

// DefaultPolicy is the spec's illustrative default for the refresh
// path: exponential base 1s, cap 30s, 3 attempts, jitter on.
var DefaultPolicy = Policy{
	Strategy:     Exponential,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Factor:       2,
	MaxAttempts:  3,
	Jitter:       true,
}

// delayBackOff implements backoff.BackOff over a Policy, computing
// `min(maxDelay, initialDelay * factor^(attempt-1))` for Exponential,
// a flat multiple of InitialDelay per attempt for Linear, and a fixed
// InitialDelay for Constant, with optional ±25% uniform jitter.
type delayBackOff struct {
	policy  Policy
	attempt int
}

func newDelayBackOff(p Policy) *delayBackOff {
	return &delayBackOff{policy: p}
}

func (b *delayBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.rawDelay()
	if d > b.policy.MaxDelay {
		d = b.policy.MaxDelay
	}
	if b.policy.Jitter {
		d = jitter(d)
	}
	return d
}

func (b *delayBackOff) rawDelay() time.Duration {
	switch b.policy.Strategy {
	case Linear:
		return b.policy.InitialDelay * time.Duration(b.attempt)
	case Constant:
		return b.policy.InitialDelay
	case Exponential:
		fallthrough
	default:
		factor := b.policy.Factor
		if factor <= 0 {
			factor = 2
		}
		delay := float64(b.policy.InitialDelay)
		for i := 1; i < b.attempt; i++ {
			delay *= factor
		}
		return time.Duration(delay)
	}
}

// jitter applies ±25% uniform jitter around d.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.25
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}

// Do runs operation under policy, retrying retryable errors up to
// policy.MaxAttempts times. A non-retryable error (per IsRetryable)
// aborts immediately without consuming further attempts.
func Do[T any](ctx context.Context, policy Policy, operation func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		v, err := operation()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(newDelayBackOff(policy)),
		backoff.WithMaxTries(policy.MaxAttempts),
	)
}

// transientSubstrings are transport-level failure signatures that
// count as retryable regardless of which layer surfaced them.
var transientSubstrings = []string{
	"econnrefused", "connection refused",
	"etimedout", "i/o timeout", "timeout",
	"connection reset", "reset by peer",
	"no such host", "dns",
	"temporarily_unavailable",
}

// IsRetryable classifies an error as transient (worth retrying) or
// permanent, per spec §4.6: transport errors, 5xx, 408, 429, and the
// upstream's temporarily_unavailable code are retryable; invalid_grant
// and token_revoked are not, regardless of what else matched.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if gwerrors.IsPermanent(err) || gwerrors.IsNoRefreshToken(err) {
		return false
	}
	if gwerrors.IsTransient(err) || gwerrors.IsUpstream5xx(err) || gwerrors.IsRateLimited(err) {
		return true
	}

	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		msg := strings.ToLower(gwErr.Message)
		for _, s := range transientSubstrings {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

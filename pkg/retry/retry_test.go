// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/retry"
)

func fastPolicy(strategy retry.Strategy, attempts uint) retry.Policy {
	return retry.Policy{
		Strategy:     strategy,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2,
		MaxAttempts:  attempts,
		Jitter:       false,
	}
}

func TestDo_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	v, err := retry.Do(context.Background(), fastPolicy(retry.Constant, 3), func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientFailuresUntilSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	v, err := retry.Do(context.Background(), fastPolicy(retry.Exponential, 5), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, gwerrors.NewTransientError("temporary hiccup", nil)
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestDo_AbortsImmediatelyOnPermanentError(t *testing.T) {
	t.Parallel()
	calls := 0
	permanent := gwerrors.NewPermanentError("token revoked", nil)
	_, err := retry.Do(context.Background(), fastPolicy(retry.Exponential, 5), func() (int, error) {
		calls++
		return 0, permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, gwerrors.IsPermanent(err))
}

func TestDo_ExhaustsMaxAttemptsOnPersistentTransientError(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(retry.Linear, 3), func() (int, error) {
		calls++
		return 0, gwerrors.NewUpstream5xxError("still down", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", gwerrors.NewTransientError("x", nil), true},
		{"upstream 5xx", gwerrors.NewUpstream5xxError("x", nil), true},
		{"rate limited", gwerrors.NewRateLimited("x", time.Second), true},
		{"permanent", gwerrors.NewPermanentError("x", nil), false},
		{"no refresh token", gwerrors.NewNoRefreshTokenError("x", nil), false},
		{"generic connection reset", errors.New("read: connection reset by peer"), true},
		{"generic dns failure", errors.New("lookup foo: no such host"), true},
		{"generic unrelated error", errors.New("boom"), false},
		{"wrapped message temporarily_unavailable", gwerrors.NewUpstream4xx("temporarily_unavailable", nil), true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, retry.IsRetryable(tc.err))
		})
	}
}

func TestDelayBackOff_ExponentialRespectsMaxDelay(t *testing.T) {
	t.Parallel()
	calls := 0
	policy := retry.Policy{
		Strategy: retry.Exponential, InitialDelay: 5 * time.Millisecond,
		MaxDelay: 8 * time.Millisecond, Factor: 10, MaxAttempts: 4, Jitter: false,
	}
	start := time.Now()
	_, _ = retry.Do(context.Background(), policy, func() (int, error) {
		calls++
		return 0, gwerrors.NewTransientError("x", nil)
	})
	elapsed := time.Since(start)
	assert.Equal(t, 4, calls)
	// 3 backoff sleeps, each capped at 8ms: well under an unbounded exponential blowup.
	assert.Less(t, elapsed, 100*time.Millisecond)
}

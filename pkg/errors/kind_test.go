// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want gwerrors.Kind
	}{
		{"bare error", errors.New("boom"), gwerrors.KindInternal},
		{"no refresh token", gwerrors.NewNoRefreshTokenError("x", nil), gwerrors.KindAuth},
		{"permanent", gwerrors.NewPermanentError("x", nil), gwerrors.KindAuth},
		{"name collision", gwerrors.NewNameCollisionError("x", nil), gwerrors.KindValidation},
		{"upstream 4xx", gwerrors.NewUpstream4xx("x", nil), gwerrors.KindValidation},
		{"not found", gwerrors.NewNotFoundError("x", nil), gwerrors.KindNotFound},
		{"rate limited", gwerrors.NewRateLimited("x", time.Second), gwerrors.KindRateLimited},
		{"circuit open", gwerrors.NewCircuitOpen("x", time.Second), gwerrors.KindCircuitOpen},
		{"upstream 5xx", gwerrors.NewUpstream5xxError("x", nil), gwerrors.KindUpstream5xx},
		{"transient", gwerrors.NewTransientError("x", nil), gwerrors.KindNetwork},
		{"permission denied", gwerrors.NewPermissionDeniedError("x", nil), gwerrors.KindPermissionDenied},
		{"internal", gwerrors.NewInternalError("x", nil), gwerrors.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, gwerrors.KindOf(tc.err))
		})
	}
}

func TestToEnvelope_CarriesRetryAfterAndDetails(t *testing.T) {
	t.Parallel()
	err := gwerrors.NewRateLimited("slow down", 5*time.Second)
	env := gwerrors.ToEnvelope(err)

	assert.Equal(t, gwerrors.KindRateLimited, env.Code)
	require := assert.New(t)
	require.NotNil(env.RetryAfter)
	require.Equal(5.0, *env.RetryAfter)

	detailed := gwerrors.NewUpstream4xx("bad field", map[string]string{"subject": "required"})
	env2 := gwerrors.ToEnvelope(detailed)
	assert.Equal(t, "required", env2.Details["subject"])
}

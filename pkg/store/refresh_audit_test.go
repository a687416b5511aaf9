// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

func TestAppendRefreshAudit_AppendOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, s, "acme-corp")

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendRefreshAudit(ctx, &store.RefreshAudit{
			TenantID: tenant.ID,
			At:       time.Now(),
			Outcome:  store.OutcomeFailure,
		}))
	}

	audits, err := s.QueryRefreshAuditsWithinWindow(ctx, tenant.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, audits, 5)
}

func TestQueryRefreshAuditsWithinWindow_ExcludesOlderRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, s, "acme-corp")

	require.NoError(t, s.AppendRefreshAudit(ctx, &store.RefreshAudit{
		TenantID: tenant.ID,
		At:       time.Now().Add(-20 * time.Minute),
		Outcome:  store.OutcomeSuccess,
	}))
	require.NoError(t, s.AppendRefreshAudit(ctx, &store.RefreshAudit{
		TenantID: tenant.ID,
		At:       time.Now(),
		Outcome:  store.OutcomeSuccess,
	}))

	audits, err := s.QueryRefreshAuditsWithinWindow(ctx, tenant.ID, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, audits, 1)
}

func TestQueryRefreshAuditsWithinWindow_OrderedOldestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	tenant := registerTenant(t, s, "acme-corp")

	first := time.Now().Add(-5 * time.Minute)
	second := time.Now()
	require.NoError(t, s.AppendRefreshAudit(ctx, &store.RefreshAudit{TenantID: tenant.ID, At: second, Outcome: store.OutcomeSuccess}))
	require.NoError(t, s.AppendRefreshAudit(ctx, &store.RefreshAudit{TenantID: tenant.ID, At: first, Outcome: store.OutcomeFailure}))

	audits, err := s.QueryRefreshAuditsWithinWindow(ctx, tenant.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.True(t, audits[0].At.Before(audits[1].At) || audits[0].At.Equal(audits[1].At))
	assert.Equal(t, store.OutcomeFailure, audits[0].Outcome)
}

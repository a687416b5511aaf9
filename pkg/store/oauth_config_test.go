// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

func newTestOAuthConfig(tenantID string) *store.OAuthConfig {
	return &store.OAuthConfig{
		TenantID:        tenantID,
		ClientIDEnc:     "1.enc-client-id",
		ClientSecretEnc: "1.enc-client-secret",
		RefreshTokenEnc: "1.enc-refresh-token",
		Scopes:          []string{"ITSM.Requests.READ", "ITSM.Requests.CREATE"},
		InstanceURL:     "https://acme.example.com",
		SchemeVersion:   1,
	}
}

func TestInsertTenantWithConfig_Atomic(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	tenant := newTestTenant("acme-corp")
	cfg := newTestOAuthConfig("")
	require.NoError(t, s.InsertTenantWithConfig(ctx, tenant, cfg))
	assert.Equal(t, tenant.ID, cfg.TenantID)

	got, err := s.FindOAuthConfigByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ClientIDEnc, got.ClientIDEnc)
	assert.Equal(t, cfg.Scopes, got.Scopes)
	assert.Equal(t, cfg.InstanceURL, got.InstanceURL)
}

func TestFindOAuthConfigByTenant_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.FindOAuthConfigByTenant(context.Background(), "no-such-tenant")
	require.Error(t, err)
	assert.True(t, gwerrors.IsNotFound(err))
}

func TestUpsertOAuthConfig_ReplacesExisting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	tenant := newTestTenant("acme-corp")
	cfg := newTestOAuthConfig("")
	require.NoError(t, s.InsertTenantWithConfig(ctx, tenant, cfg))

	cfg.RefreshTokenEnc = "1.enc-rotated-refresh-token"
	cfg.Scopes = []string{"ITSM.Requests.ALL"}
	require.NoError(t, s.UpsertOAuthConfig(ctx, cfg))

	got, err := s.FindOAuthConfigByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.enc-rotated-refresh-token", got.RefreshTokenEnc)
	assert.Equal(t, []string{"ITSM.Requests.ALL"}, got.Scopes)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token_test

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	gwcrypto "github.com/PTTG-IT/SDP-MCP-sub003/pkg/crypto"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/ratelimit"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/token"
)

func TestSweeper_RefreshesTokensWithinMarginButNotBeyondIt(t *testing.T) {
	t.Parallel()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "sdpgw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	key := make([]byte, gwcrypto.KeySize)
	_, err = rand.Read(key)
	require.NoError(t, err)
	cs, err := gwcrypto.NewService(key)
	require.NoError(t, err)

	reg := tenant.New(s, cs, testRegions)
	coord := ratelimit.NewStoreCoordinator(s, ratelimit.DefaultRefreshPolicy)
	refresher := &fakeRefresher{fn: func(int64) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "swept", Expiry: time.Now().Add(time.Hour)}, nil
	}}
	m := token.New(s, cs, reg, coord, refresher)

	due := registerTenant(t, reg)
	notDue, err := reg.Register(context.Background(), tenant.RegisterRequest{
		Name: "globex", Region: "us-east", Tier: store.TierStandard,
		ClientID: "id2", ClientSecret: "secret2", RefreshToken: "refresh-2",
		Scopes: []string{"ITSM.Requests.READ"}, InstanceURL: "https://us-east.sdpondemand.example.com/app",
	})
	require.NoError(t, err)

	now := time.Now()
	seedToken := func(tenantID string, expiresAt time.Time) {
		accessEnc, err := cs.Encrypt("old-access", tenantNameOf(t, s, tenantID))
		require.NoError(t, err)
		refreshEnc, err := cs.Encrypt("refresh-0", tenantNameOf(t, s, tenantID))
		require.NoError(t, err)
		require.NoError(t, s.UpsertStoredToken(context.Background(), &store.StoredToken{
			TenantID: tenantID, AccessEnc: string(accessEnc), RefreshEnc: string(refreshEnc),
			ExpiresAt: expiresAt, LastRefreshed: now,
		}, &store.RefreshAudit{TenantID: tenantID, At: expiresAt.Add(-time.Hour), Outcome: store.OutcomeSuccess}))
	}

	seedToken(due.ID, now.Add(2*time.Minute)) // within RefreshMargin (5m) - due
	seedToken(notDue.ID, now.Add(time.Hour))  // well beyond margin - not due

	m.Sweep(context.Background())

	assert.Equal(t, int64(1), refresher.calls.Load(), "only the tenant within refreshMargin should be refreshed")
	assert.Equal(t, "refresh-0", refresher.refreshTok, "the due tenant's refresh token should be the one presented")
}

func tenantNameOf(t *testing.T, s *store.Store, tenantID string) string {
	t.Helper()
	tn, err := s.FindTenantByID(context.Background(), tenantID)
	require.NoError(t, err)
	return tn.Name
}

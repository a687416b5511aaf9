// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// UpsertOAuthConfig inserts or replaces a tenant's OAuth configuration.
func (s *Store) UpsertOAuthConfig(ctx context.Context, c *OAuthConfig) error {
	return s.upsertOAuthConfigTx(ctx, s.db, c)
}

func (s *Store) upsertOAuthConfigTx(ctx context.Context, tx dbtx, c *OAuthConfig) error {
	scopes, err := json.Marshal(c.Scopes)
	if err != nil {
		return gwerrors.NewInternalError("failed to marshal scopes", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO oauth_configs (tenant_id, client_id_enc, client_secret_enc, refresh_token_enc, scopes, instance_url, scheme_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			client_id_enc = excluded.client_id_enc,
			client_secret_enc = excluded.client_secret_enc,
			refresh_token_enc = excluded.refresh_token_enc,
			scopes = excluded.scopes,
			instance_url = excluded.instance_url,
			scheme_version = excluded.scheme_version`,
		c.TenantID, c.ClientIDEnc, c.ClientSecretEnc, c.RefreshTokenEnc, string(scopes), c.InstanceURL, c.SchemeVersion)
	if err != nil {
		return gwerrors.NewInternalError("failed to upsert oauth config", err)
	}
	return nil
}

// FindOAuthConfigByTenant loads a tenant's OAuth configuration.
func (s *Store) FindOAuthConfigByTenant(ctx context.Context, tenantID string) (*OAuthConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, client_id_enc, client_secret_enc, refresh_token_enc, scopes, instance_url, scheme_version
		FROM oauth_configs WHERE tenant_id = ?`, tenantID)

	var c OAuthConfig
	var scopes string
	if err := row.Scan(&c.TenantID, &c.ClientIDEnc, &c.ClientSecretEnc, &c.RefreshTokenEnc, &scopes, &c.InstanceURL, &c.SchemeVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerrors.NewNotFoundError("oauth config not found for tenant: "+tenantID, err)
		}
		return nil, gwerrors.NewInternalError("failed to scan oauth config", err)
	}
	if err := json.Unmarshal([]byte(scopes), &c.Scopes); err != nil {
		return nil, gwerrors.NewInternalError("failed to unmarshal scopes", err)
	}
	return &c, nil
}

// InsertTenantWithConfig registers a tenant and its OAuth config in a
// single transaction, so a partial registration is never observable.
func (s *Store) InsertTenantWithConfig(ctx context.Context, t *Tenant, c *OAuthConfig) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertTenantTx(ctx, tx, t); err != nil {
			return err
		}
		c.TenantID = t.ID
		return s.upsertOAuthConfigTx(ctx, tx, c)
	})
}

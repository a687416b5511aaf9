// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// UpsertStoredToken atomically writes a tenant's refreshed token and
// appends the corresponding audit row in one transaction, incrementing
// refresh_count server-side so concurrent writers can't stomp on each
// other's count.
func (s *Store) UpsertStoredToken(ctx context.Context, tok *StoredToken, audit *RefreshAudit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		scopes, err := json.Marshal(tok.Scopes)
		if err != nil {
			return gwerrors.NewInternalError("failed to marshal token scopes", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stored_tokens (tenant_id, access_enc, refresh_enc, expires_at, scopes, last_refreshed, refresh_count)
			VALUES (?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT (tenant_id) DO UPDATE SET
				access_enc = excluded.access_enc,
				refresh_enc = excluded.refresh_enc,
				expires_at = excluded.expires_at,
				scopes = excluded.scopes,
				last_refreshed = excluded.last_refreshed,
				refresh_count = stored_tokens.refresh_count + 1`,
			tok.TenantID, tok.AccessEnc, tok.RefreshEnc, tok.ExpiresAt, string(scopes), tok.LastRefreshed)
		if err != nil {
			return gwerrors.NewInternalError("failed to upsert stored token", err)
		}

		return s.appendRefreshAuditTx(ctx, tx, audit)
	})
}

// FindStoredTokenByTenant loads a tenant's cached token regardless of
// expiry.
func (s *Store) FindStoredTokenByTenant(ctx context.Context, tenantID string) (*StoredToken, error) {
	return s.scanStoredToken(s.db.QueryRowContext(ctx, storedTokenSelect+" WHERE tenant_id = ?", tenantID), tenantID)
}

// FindValidStoredTokenByTenant loads a tenant's cached token only if its
// expiry is still in the future as of now (a server-side predicate, not
// a safety-margin check - callers apply the margin themselves).
func (s *Store) FindValidStoredTokenByTenant(ctx context.Context, tenantID string, now time.Time) (*StoredToken, error) {
	return s.scanStoredToken(
		s.db.QueryRowContext(ctx, storedTokenSelect+" WHERE tenant_id = ? AND expires_at > ?", tenantID, now),
		tenantID)
}

// DeleteExpiredStoredTokens removes tokens whose expiry is older than
// olderThan (spec default: 1 day past expiry), returning the count
// removed.
func (s *Store) DeleteExpiredStoredTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stored_tokens WHERE expires_at < ?`, olderThan)
	if err != nil {
		return 0, gwerrors.NewInternalError("failed to delete expired tokens", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, gwerrors.NewInternalError("failed to read rows affected", err)
	}
	return n, nil
}

// TokenStatisticsByTenant summarizes a tenant's refresh history by
// joining its stored token against the audit trail.
func (s *Store) TokenStatisticsByTenant(ctx context.Context, tenantID string) (*TokenStatistics, error) {
	stats := &TokenStatistics{TenantID: tenantID}

	row := s.db.QueryRowContext(ctx, `
		SELECT refresh_count, last_refreshed, expires_at FROM stored_tokens WHERE tenant_id = ?`, tenantID)
	if err := row.Scan(&stats.RefreshCount, &stats.LastRefreshed, &stats.ExpiresAt); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, gwerrors.NewInternalError("failed to scan token statistics", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COUNT(*) FILTER (WHERE outcome = 'failure')
		FROM refresh_audits WHERE tenant_id = ?`, tenantID)
	if err := row.Scan(&stats.SuccessfulRefreshes, &stats.FailedRefreshes); err != nil {
		return nil, gwerrors.NewInternalError("failed to scan refresh counts", err)
	}

	return stats, nil
}

const storedTokenSelect = `
	SELECT tenant_id, access_enc, refresh_enc, expires_at, scopes, last_refreshed, refresh_count
	FROM stored_tokens`

func (s *Store) scanStoredToken(row *sql.Row, tenantID string) (*StoredToken, error) {
	var tok StoredToken
	var scopes string
	err := row.Scan(&tok.TenantID, &tok.AccessEnc, &tok.RefreshEnc, &tok.ExpiresAt, &scopes, &tok.LastRefreshed, &tok.RefreshCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gwerrors.NewNotFoundError("stored token not found for tenant: "+tenantID, err)
		}
		return nil, gwerrors.NewInternalError("failed to scan stored token", err)
	}
	if err := json.Unmarshal([]byte(scopes), &tok.Scopes); err != nil {
		return nil, gwerrors.NewInternalError("failed to unmarshal token scopes", err)
	}
	return &tok, nil
}

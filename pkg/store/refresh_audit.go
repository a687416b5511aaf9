// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"time"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// AppendRefreshAudit writes one append-only audit row for a refresh
// attempt, standalone (outside UpsertStoredToken's transaction) - used
// for failure rows, since a failed refresh has no token to upsert.
func (s *Store) AppendRefreshAudit(ctx context.Context, a *RefreshAudit) error {
	return s.appendRefreshAuditTx(ctx, s.db, a)
}

func (s *Store) appendRefreshAuditTx(ctx context.Context, tx dbtx, a *RefreshAudit) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_audits (tenant_id, at, outcome, classification, instance_id)
		VALUES (?, ?, ?, ?, ?)`,
		a.TenantID, a.At, a.Outcome, a.Classification, a.InstanceID)
	if err != nil {
		return gwerrors.NewInternalError("failed to append refresh audit", err)
	}
	return nil
}

// QueryRefreshAuditsWithinWindow returns a tenant's audit rows with
// at >= since, ordered oldest-first, for the rate-limit coordinator's
// cold-start window recovery.
func (s *Store) QueryRefreshAuditsWithinWindow(ctx context.Context, tenantID string, since time.Time) ([]*RefreshAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, at, outcome, classification, instance_id
		FROM refresh_audits
		WHERE tenant_id = ? AND at >= ?
		ORDER BY at ASC`, tenantID, since)
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to query refresh audits", err)
	}
	defer rows.Close()

	var audits []*RefreshAudit
	for rows.Next() {
		a, err := scanRefreshAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewInternalError("failed to iterate refresh audits", err)
	}
	return audits, nil
}

func scanRefreshAudit(rows *sql.Rows) (*RefreshAudit, error) {
	var a RefreshAudit
	if err := rows.Scan(&a.ID, &a.TenantID, &a.At, &a.Outcome, &a.Classification, &a.InstanceID); err != nil {
		return nil, gwerrors.NewInternalError("failed to scan refresh audit", err)
	}
	return &a, nil
}

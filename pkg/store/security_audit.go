// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// SuspendTenantForSecurity flips t's status (and persists its other
// mutable fields) and appends a SecurityAudit row in a single
// transaction, so an admin querying the audit trail never observes a
// suspended tenant without the record explaining why, or vice versa.
func (s *Store) SuspendTenantForSecurity(ctx context.Context, t *Tenant, a *SecurityAudit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateTenantStatusTierMetadataTx(ctx, tx, t); err != nil {
			return err
		}
		return s.appendSecurityAuditTx(ctx, tx, a)
	})
}

// AppendSecurityAudit writes one append-only security-audit row,
// standalone - exposed for the administrative surface and tests; the
// refresh path always goes through SuspendTenantForSecurity instead.
func (s *Store) AppendSecurityAudit(ctx context.Context, a *SecurityAudit) error {
	return s.appendSecurityAuditTx(ctx, s.db, a)
}

func (s *Store) appendSecurityAuditTx(ctx context.Context, tx dbtx, a *SecurityAudit) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO security_audits (tenant_id, at, event, cause)
		VALUES (?, ?, ?, ?)`,
		a.TenantID, a.At, a.Event, a.Cause)
	if err != nil {
		return gwerrors.NewInternalError("failed to append security audit", err)
	}
	return nil
}

// QuerySecurityAuditsByTenant returns a tenant's security-audit rows,
// newest first, for the admin surface.
func (s *Store) QuerySecurityAuditsByTenant(ctx context.Context, tenantID string) ([]*SecurityAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, at, event, cause
		FROM security_audits
		WHERE tenant_id = ?
		ORDER BY at DESC`, tenantID)
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to query security audits", err)
	}
	defer rows.Close()

	var audits []*SecurityAudit
	for rows.Next() {
		var a SecurityAudit
		if err := rows.Scan(&a.ID, &a.TenantID, &a.At, &a.Event, &a.Cause); err != nil {
			return nil, gwerrors.NewInternalError("failed to scan security audit", err)
		}
		audits = append(audits, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewInternalError("failed to iterate security audits", err)
	}
	return audits, nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

// InsertTenant creates a new tenant row, generating its id if empty.
func (s *Store) InsertTenant(ctx context.Context, t *Tenant) error {
	return s.insertTenantTx(ctx, s.db, t)
}

func (s *Store) insertTenantTx(ctx context.Context, tx dbtx, t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return gwerrors.NewInternalError("failed to marshal tenant metadata", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, region, status, tier, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Region, t.Status, t.Tier, string(meta), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return gwerrors.NewNameCollisionError("tenant name already registered", err)
		}
		return gwerrors.NewInternalError("failed to insert tenant", err)
	}
	return nil
}

// FindTenantByID loads a tenant by its opaque id.
func (s *Store) FindTenantByID(ctx context.Context, id string) (*Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx, tenantSelect+" WHERE id = ?", id))
}

// FindTenantByName loads a tenant by its unique, case-insensitive name.
func (s *Store) FindTenantByName(ctx context.Context, name string) (*Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx, tenantSelect+" WHERE LOWER(name) = LOWER(?)", name))
}

// UpdateTenantStatusTierMetadata updates the mutable fields of a tenant
// in place, bumping updated_at.
func (s *Store) UpdateTenantStatusTierMetadata(ctx context.Context, t *Tenant) error {
	return s.updateTenantStatusTierMetadataTx(ctx, s.db, t)
}

func (s *Store) updateTenantStatusTierMetadataTx(ctx context.Context, tx dbtx, t *Tenant) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return gwerrors.NewInternalError("failed to marshal tenant metadata", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tenants SET status = ?, tier = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		t.Status, t.Tier, string(meta), t.UpdatedAt, t.ID)
	if err != nil {
		return gwerrors.NewInternalError("failed to update tenant", err)
	}
	return requireRowAffected(res, "tenant", t.ID)
}

// ListActiveTenants returns every tenant currently in the active status.
func (s *Store) ListActiveTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, tenantSelect+" WHERE status = ? ORDER BY name", TenantActive)
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to list active tenants", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewInternalError("failed to iterate tenants", err)
	}
	return tenants, nil
}

// ListAllTenants returns every tenant regardless of status, for the
// administrative CLI's listing command.
func (s *Store) ListAllTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, tenantSelect+" ORDER BY name")
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to list tenants", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerrors.NewInternalError("failed to iterate tenants", err)
	}
	return tenants, nil
}

// DeleteTenant removes a tenant and, via ON DELETE CASCADE, its
// oauth_config, stored_token, and refresh_audits rows.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return gwerrors.NewInternalError("failed to delete tenant", err)
	}
	return requireRowAffected(res, "tenant", id)
}

const tenantSelect = `SELECT id, name, region, status, tier, metadata, created_at, updated_at FROM tenants`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row *sql.Row) (*Tenant, error) {
	t, err := scanTenantRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gwerrors.NewNotFoundError("tenant not found", err)
	}
	return t, err
}

func scanTenantRow(row rowScanner) (*Tenant, error) {
	var t Tenant
	var meta string
	if err := row.Scan(&t.ID, &t.Name, &t.Region, &t.Status, &t.Tier, &meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, gwerrors.NewInternalError("failed to scan tenant row", err)
	}
	if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
		return nil, gwerrors.NewInternalError("failed to unmarshal tenant metadata", err)
	}
	return &t, nil
}

// requireRowAffected converts a zero-rows-affected result into a
// NotFound error, since sqlite's UPDATE/DELETE report no error for a
// predicate that simply matched nothing.
func requireRowAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return gwerrors.NewInternalError("failed to read rows affected", err)
	}
	if n == 0 {
		return gwerrors.NewNotFoundError(kind+" not found: "+id, nil)
	}
	return nil
}

// isUniqueViolation recognizes sqlite's unique-constraint error text.
// modernc.org/sqlite doesn't expose a typed error for this, so the
// message is matched the way the driver's own tests do.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting query helpers
// run standalone or as part of a caller-managed transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a bounded-pool sqlite-backed handle shared by every gateway
// component that needs tenant, credential, token, or audit persistence.
type Store struct {
	db *sql.DB
}

// Open establishes a connection pool to the sqlite database at dsn and
// applies any pending migrations. dsn is a modernc.org/sqlite data
// source, e.g. a file path or "file::memory:?cache=shared" for tests.
func Open(ctx context.Context, dsn string) (*Store, error) {
	// sqlite leaves foreign keys off per connection; the driver's _pragma
	// parameter turns them on for every pooled connection so the
	// migrations' ON DELETE CASCADE clauses take effect.
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+"_pragma=foreign_keys(1)")
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to open store", err)
	}

	// sqlite serializes writers; keep the pool small so callers queue on
	// the driver's own lock rather than opening connections that just
	// contend for it anyway.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, gwerrors.NewInternalError("failed to connect to store", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies every pending embedded migration.
func (s *Store) migrate() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return gwerrors.NewInternalError("failed to set migration dialect", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return gwerrors.NewInternalError("failed to run migrations", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any returned error (including a panic re-thrown after rollback).
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gwerrors.NewInternalError("failed to begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return gwerrors.NewInternalError(fmt.Sprintf("rollback failed after %v", err), rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return gwerrors.NewInternalError("failed to commit transaction", err)
	}
	return nil
}

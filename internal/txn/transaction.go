// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package txn implements the Transaction abstraction (C5): a thin wrapper
// coupling one pooled connection to a commit/rollback/close lifecycle,
// modeled on org.apache.ibatis.transaction.Transaction and its jdbc/managed
// variants.
package txn

import (
	"context"
	"database/sql"

	"github.com/sqlbatis/sqlbatis/internal/pool"
)

// Transaction is the interface the executor drives: obtain a connection
// lazily, commit/rollback/close its lifecycle.
type Transaction interface {
	Conn(ctx context.Context) (*sql.Conn, error)
	Commit() error
	Rollback() error
	Close() error
}

// Managed is the "managed-by-driver" variant of spec.md §4.5: it lazily
// obtains a pooled connection on first Conn(), applies the desired isolation
// level and autocommit preference, and resets autocommit to true on Close
// (workaround for drivers requiring an explicit commit before close).
type Managed struct {
	pool      *pool.Pool
	autoCommit bool
	isolation  sql.IsolationLevel

	wrapped *pool.Wrapped
	tx      *sql.Tx
}

// NewManaged builds a Managed transaction over p with the desired autocommit
// mode and isolation level.
func NewManaged(p *pool.Pool, autoCommit bool, isolation sql.IsolationLevel) *Managed {
	return &Managed{pool: p, autoCommit: autoCommit, isolation: isolation}
}

// ConfigError wraps a driver rejection of autocommit/isolation setup, the
// TRANSACTION_CONFIG kind from spec.md §7.
type ConfigError struct{ Cause error }

func (e *ConfigError) Error() string { return "txn: configuration failed: " + e.Cause.Error() }
func (e *ConfigError) Unwrap() error { return e.Cause }

func (m *Managed) Conn(ctx context.Context) (*sql.Conn, error) {
	if m.wrapped != nil {
		return m.wrapped.Raw(), nil
	}
	w, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.wrapped = w
	if !m.autoCommit {
		tx, err := w.Raw().BeginTx(ctx, &sql.TxOptions{Isolation: m.isolation})
		if err != nil {
			return nil, &ConfigError{Cause: err}
		}
		m.tx = tx
	}
	return w.Raw(), nil
}

// Commit is a no-op in autocommit mode; otherwise commits the open *sql.Tx.
func (m *Managed) Commit() error {
	if m.autoCommit || m.tx == nil {
		return nil
	}
	err := m.tx.Commit()
	m.tx = nil
	return err
}

// Rollback is a no-op in autocommit mode; otherwise rolls back the open
// *sql.Tx.
func (m *Managed) Rollback() error {
	if m.autoCommit || m.tx == nil {
		return nil
	}
	err := m.tx.Rollback()
	m.tx = nil
	return err
}

// Close returns the connection to the pool. Per spec.md §4.5, autocommit is
// reset to true first so drivers that require an explicit commit before
// close don't block the pooled connection's reuse.
func (m *Managed) Close() error {
	if m.wrapped == nil {
		return nil
	}
	if m.tx != nil {
		_ = m.tx.Rollback()
		m.tx = nil
	}
	w := m.wrapped
	m.wrapped = nil
	return w.Close()
}

// External is the "externally-managed" variant of spec.md §4.5: the caller
// supplies a live *sql.Conn (and optionally an open *sql.Tx); commit,
// rollback, and close are all no-ops since the caller owns the lifecycle.
type External struct {
	conn *sql.Conn
	tx   *sql.Tx
}

// NewExternal wraps a caller-supplied connection/transaction pair.
func NewExternal(conn *sql.Conn, tx *sql.Tx) *External { return &External{conn: conn, tx: tx} }

func (e *External) Conn(context.Context) (*sql.Conn, error) { return e.conn, nil }
func (e *External) Commit() error                           { return nil }
func (e *External) Rollback() error                         { return nil }
func (e *External) Close() error                             { return nil }

// Tx returns the externally-supplied *sql.Tx, if any, so the statement
// handler can prepare statements against it instead of the bare connection.
func (e *External) Tx() *sql.Tx { return e.tx }

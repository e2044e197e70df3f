// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pool implements the bounded connection broker (C4): a
// thread-safe wrapper over a *sql.DB's non-pooled Conn() factory with
// overdue-claim reclamation and ping-based validation, modeled directly on
// org.apache.ibatis.datasource.pooled.PooledDataSource.
package pool

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"
)

// Wrapped is a pooled connection wrapper around one real *sql.Conn. "Closing"
// a Wrapped returns it to the pool rather than to the driver; the pool is the
// only owner of live underlying connections, per spec.md §4.4.
type Wrapped struct {
	pool       *Pool
	real       *sql.Conn
	createdAt  time.Time
	lastUsedAt time.Time
	checkoutAt time.Time
	typeCode   uint64
	valid      bool
}

// Raw returns the underlying *sql.Conn for statement preparation.
func (w *Wrapped) Raw() *sql.Conn { return w.real }

// Close returns the wrapper to its owning pool. Safe to call more than once:
// an already-invalidated wrapper's Close is a no-op, per the §9 design note
// guarding against a double-return race with the pool's overdue-claim path.
func (w *Wrapped) Close() error {
	if !w.valid {
		return nil
	}
	return w.pool.release(w)
}

// connectionTypeCode hashes url+user+password into the "connection type"
// code the pool uses to detect that pool parameters changed underneath an
// idle wrapper (spec.md §3 Pooled Connection: "connection type code (hash of
// url+user+password)").
func connectionTypeCode(url, user, password string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(url))
	h.Write([]byte(user))
	h.Write([]byte(password))
	return h.Sum64()
}

// ping validates a wrapper per spec.md §4.4 "Ping": false immediately if the
// underlying connection reports closed; if ping is enabled and the
// connection has been idle past pingNotUsedFor, executes pingQuery.
func (w *Wrapped) ping(ctx context.Context, query string, enabled bool, notUsedFor time.Duration) bool {
	if err := w.real.PingContext(ctx); err != nil {
		return false
	}
	if enabled && query != "" && time.Since(w.lastUsedAt) > notUsedFor {
		if _, err := w.real.ExecContext(ctx, query); err != nil {
			w.real.Close()
			return false
		}
	}
	return true
}

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/resultset"
	"github.com/sqlbatis/sqlbatis/internal/stmt"
)

// BatchError wraps a failure flushing one row of a deferred batch, carrying
// the offending statement id and the row's position in the queued batch.
type BatchError struct {
	Statement string
	Index     int
	Cause     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("executor: batch statement %q row %d: %v", e.Statement, e.Index, e.Cause)
}
func (e *BatchError) Unwrap() error { return e.Cause }

// deferredResult is returned from Update while a Batch executor holds the
// row queued; its real RowsAffected/LastInsertId only become known once
// FlushStatements actually executes it.
type deferredResult struct{}

func (deferredResult) LastInsertId() (int64, error) { return 0, nil }
func (deferredResult) RowsAffected() (int64, error) { return 0, nil }

type queuedStatement struct {
	ms      *registry.MappedStatement
	sqlText string
	bsql    *dynsql.BoundSQL
	args    [][]any
	raw     []any
}

// Batch is the BATCH executor type of spec.md §4.13: successive updates
// against the same rendered SQL text are queued rather than executed
// immediately, and run together on FlushStatements/Commit (Close and Rollback
// discard them). database/sql
// exposes no wire-level batch protocol, so "batched" here means "executed
// together, in order, on the same connection" rather than a single
// multi-row round trip — see DESIGN.md.
type Batch struct {
	*Base

	mu    sync.Mutex
	queue []*queuedStatement
	last  *queuedStatement
}

// NewBatch builds a Batch executor over base.
func NewBatch(base *Base) *Batch {
	b := &Batch{Base: base}
	base.bindSelf(b)
	return b
}

func (e *Batch) Update(ctx context.Context, ms *registry.MappedStatement, parameter any) (sql.Result, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	h := stmt.New(ms, e.convs, e.stmtCfg)
	if ms.KeyGeneratorKind == registry.KeyGenSelectBefore {
		conn, err := e.tx.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.runSelectKey(ctx, conn, ms, parameter); err != nil {
			return nil, err
		}
	}
	bsql, err := stmt.Render(h, parameter)
	if err != nil {
		return nil, err
	}
	args, err := stmt.BindArgs(h, bsql, parameter)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.last != nil && e.last.ms.ID == ms.ID && e.last.sqlText == bsql.SQL {
		e.last.args = append(e.last.args, args)
		e.last.raw = append(e.last.raw, parameter)
	} else {
		q := &queuedStatement{ms: ms, sqlText: bsql.SQL, bsql: bsql, args: [][]any{args}, raw: []any{parameter}}
		e.queue = append(e.queue, q)
		e.last = q
	}
	e.mu.Unlock()

	e.clearLocalCache()
	return deferredResult{}, nil
}

// Query flushes any pending batch first (a read must observe prior queued
// writes), then executes like Simple: a mixed batch/query session doesn't
// itself get statement reuse.
func (e *Batch) Query(ctx context.Context, ms *registry.MappedStatement, parameter any, offset, limit int) ([]any, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	if err := e.FlushStatements(ctx); err != nil {
		return nil, err
	}
	h := stmt.New(ms, e.convs, e.stmtCfg)
	bsql, err := stmt.Render(h, parameter)
	if err != nil {
		return nil, err
	}
	if ms.FlushCache {
		e.clearLocalCache()
	}
	key := e.cacheKey(ms, parameter, offset, limit, bsql.SQL)
	return e.withLocalCache(key, func() ([]any, error) {
		conn, err := e.tx.Conn(ctx)
		if err != nil {
			return nil, err
		}
		rows, _, err := h.Query(ctx, conn, parameter)
		if err != nil {
			return nil, err
		}
		rsh := resultset.New(e.resultCfg, e.self)
		return rsh.Handle(ctx, rows, ms, offset, limit)
	})
}

// FlushStatements executes every queued statement's rows in queue order,
// each row in the order it was added, per spec.md §4.13 "flush executes
// queued statements in FIFO order."
func (e *Batch) FlushStatements(ctx context.Context) error {
	e.mu.Lock()
	queue := e.queue
	e.queue = nil
	e.last = nil
	e.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}

	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return err
	}

	for _, q := range queue {
		for i, args := range q.args {
			res, err := conn.ExecContext(ctx, q.sqlText, args...)
			if err != nil {
				return &BatchError{Statement: q.ms.ID, Index: i, Cause: err}
			}
			if q.ms.KeyGeneratorKind == registry.KeyGenDriver {
				stmt.AssignGeneratedKeysBatch(res, q.ms, q.raw[i])
			} else if q.ms.KeyGeneratorKind == registry.KeyGenSelectAfter {
				if err := e.runSelectKey(ctx, conn, q.ms, q.raw[i]); err != nil {
					return &BatchError{Statement: q.ms.ID, Index: i, Cause: err}
				}
			}
		}
	}
	return nil
}

// Close drops any still-queued (unflushed) statements before releasing the
// underlying transaction/connection, mirroring a rollback's implicit
// discard of pending batch work.
func (e *Batch) Close() error {
	e.mu.Lock()
	e.queue = nil
	e.last = nil
	e.mu.Unlock()
	return e.Base.Close()
}

// Rollback drops any still-queued (unflushed) statements, then rolls the
// transaction back like Base.Rollback.
func (e *Batch) Rollback(ctx context.Context) error {
	e.mu.Lock()
	e.queue = nil
	e.last = nil
	e.mu.Unlock()
	return e.Base.Rollback(ctx)
}

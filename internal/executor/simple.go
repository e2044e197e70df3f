// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"database/sql"

	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/resultset"
	"github.com/sqlbatis/sqlbatis/internal/stmt"
)

// Simple is the SIMPLE executor type of spec.md §4.13: prepares and closes a
// fresh driver statement for every call, doing no statement reuse across
// invocations.
type Simple struct{ *Base }

// NewSimple builds a Simple executor over base and wires base's nested-
// select recursion back to it.
func NewSimple(base *Base) *Simple {
	s := &Simple{Base: base}
	base.bindSelf(s)
	return s
}

func (e *Simple) Query(ctx context.Context, ms *registry.MappedStatement, parameter any, offset, limit int) ([]any, error) {
	if e.Closed() {
		return nil, ErrClosed
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

func (e *Simple) Update(ctx context.Context, ms *registry.MappedStatement, parameter any) (sql.Result, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	e.clearLocalCache()
	h := stmt.New(ms, e.convs, e.stmtCfg)
	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if ms.KeyGeneratorKind == registry.KeyGenSelectBefore {
		if err := e.runSelectKey(ctx, conn, ms, parameter); err != nil {
			return nil, err
		}
	}
	res, _, err := h.Update(ctx, conn, parameter)
	if err != nil {
		return res, err
	}
	if ms.KeyGeneratorKind == registry.KeyGenSelectAfter {
		if err := e.runSelectKey(ctx, conn, ms, parameter); err != nil {
			return res, err
		}
	}
	return res, nil
}

// FlushStatements is a no-op: Simple defers nothing.
func (e *Simple) FlushStatements(ctx context.Context) error { return nil }

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"database/sql"
	"sync"

	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/resultset"
	"github.com/sqlbatis/sqlbatis/internal/stmt"
)

// Reuse is the REUSE executor type of spec.md §4.13: caches one *sql.Stmt
// per distinct rendered SQL text for the life of the session, reusing it
// across calls that render to the same text (typically repeat invocations
// of the same statement with different parameter values).
type Reuse struct {
	*Base

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// NewReuse builds a Reuse executor over base.
func NewReuse(base *Base) *Reuse {
	r := &Reuse{Base: base, stmts: map[string]*sql.Stmt{}}
	base.bindSelf(r)
	return r
}

func (e *Reuse) prepared(ctx context.Context, conn stmt.Preparer, sqlText string) (*sql.Stmt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stmts[sqlText]; ok {
		return s, nil
	}
	s, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	e.stmts[sqlText] = s
	return s, nil
}

func (e *Reuse) Query(ctx context.Context, ms *registry.MappedStatement, parameter any, offset, limit int) ([]any, error) {
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
		ps, err := e.prepared(ctx, conn, bsql.SQL)
		if err != nil {
			return nil, err
		}
		args, err := stmt.BindArgs(h, bsql, parameter)
		if err != nil {
			return nil, err
		}
		rows, err := ps.QueryContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		rsh := resultset.New(e.resultCfg, e.self)
		return rsh.Handle(ctx, rows, ms, offset, limit)
	})
}

func (e *Reuse) Update(ctx context.Context, ms *registry.MappedStatement, parameter any) (sql.Result, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	e.clearLocalCache()
	h := stmt.New(ms, e.convs, e.stmtCfg)
	bsql, err := stmt.Render(h, parameter)
	if err != nil {
		return nil, err
	}
	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if ms.KeyGeneratorKind == registry.KeyGenSelectBefore {
		if err := e.runSelectKey(ctx, conn, ms, parameter); err != nil {
			return nil, err
		}
	}
	ps, err := e.prepared(ctx, conn, bsql.SQL)
	if err != nil {
		return nil, err
	}
	args, err := stmt.BindArgs(h, bsql, parameter)
	if err != nil {
		return nil, err
	}
	res, err := ps.ExecContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	if ms.KeyGeneratorKind == registry.KeyGenDriver {
		stmt.AssignGeneratedKeys(res, ms, parameter)
	}
	if ms.KeyGeneratorKind == registry.KeyGenSelectAfter {
		if err := e.runSelectKey(ctx, conn, ms, parameter); err != nil {
			return res, err
		}
	}
	return res, nil
}

// FlushStatements is a no-op: Reuse executes eagerly, only deferring
// statement preparation, not execution.
func (e *Reuse) FlushStatements(ctx context.Context) error { return nil }

// Close closes every cached prepared statement before releasing the
// underlying transaction/connection.
func (e *Reuse) Close() error {
	e.mu.Lock()
	for _, s := range e.stmts {
		s.Close()
	}
	e.stmts = map[string]*sql.Stmt{}
	e.mu.Unlock()
	return e.Base.Close()
}

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"context"
	"database/sql"

	"github.com/eframework-org/GO.UTIL/XLog"

	"github.com/sqlbatis/sqlbatis/internal/executor"
	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/registry"
)

// ResultHandler receives one materialized row at a time, the streaming
// form of spec.md §6 `select(id, param, rowBounds, handler)`.
type ResultHandler func(row any) error

// RowBounds bounds which rows of a query's result contribute to the
// returned list (spec.md §3/§4.12 row-range, applied client-side since
// database/sql has no server-side cursor scroll).
type RowBounds struct {
	Offset int
	Limit  int
}

// NoRowBounds is the unbounded row range.
var NoRowBounds = RowBounds{Offset: 0, Limit: -1}

// Session is the programmatic surface of spec.md §6: not safe for
// concurrent use by more than one goroutine at a time, mirroring
// org.apache.ibatis.session.SqlSession.
type Session struct {
	cfg  *Configuration
	exec executor.Executor
}

func (s *Session) statement(id string) (*registry.MappedStatement, error) {
	ms, ok := s.cfg.Registry.Statement(id)
	if !ok {
		return nil, newErr(ErrStatementNotFound, id, nil, "statement not found")
	}
	return ms, nil
}

// SelectList runs a SELECT statement and returns every matching row within
// bounds.
func (s *Session) SelectList(ctx context.Context, id string, parameter any, bounds RowBounds) ([]any, error) {
	ms, err := s.statement(id)
	if err != nil {
		return nil, err
	}
	limit := bounds.Limit
	if limit == 0 {
		limit = -1
	}
	rows, err := s.exec.Query(ctx, ms, parameter, bounds.Offset, limit)
	// This is always a top-level statement: nested `<association>`/
	// `<collection>` selects recurse through the executor's own
	// NestedSelector.Select, never back through Session, so a STATEMENT-
	// scoped clear here can't land mid-statement between a parent query and
	// its nested selects (spec.md §4.13 step 3, §9).
	s.exec.ClearLocalCacheIfStatementScoped()
	if err != nil {
		XLog.Error("sqlbatis: select %q failed: %v", id, err)
		return nil, wrapExecErr(id, err)
	}
	return rows, nil
}

// SelectOne runs a SELECT statement expecting at most one row, returning
// (nil, nil) if it produced none.
func (s *Session) SelectOne(ctx context.Context, id string, parameter any) (any, error) {
	rows, err := s.SelectList(ctx, id, parameter, RowBounds{Offset: 0, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// SelectMap runs a SELECT statement and indexes every row by the value of
// its mapKey property, per spec.md §6 `selectMap`.
func (s *Session) SelectMap(ctx context.Context, id string, parameter any, mapKey string) (map[any]any, error) {
	rows, err := s.SelectList(ctx, id, parameter, NoRowBounds)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(rows))
	for _, row := range rows {
		key, ok := reflectx.GetProperty(row, mapKey)
		if !ok {
			return nil, newErr(ErrResultMaterialize, id, nil, "selectMap: row has no property %q", mapKey)
		}
		out[key] = row
	}
	return out, nil
}

// Select streams every matching row to handler instead of building a list,
// per spec.md §6 `select(id, param, rowBounds, handler)`.
func (s *Session) Select(ctx context.Context, id string, parameter any, bounds RowBounds, handler ResultHandler) error {
	rows, err := s.SelectList(ctx, id, parameter, bounds)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := handler(row); err != nil {
			return err
		}
	}
	return nil
}

// SelectCursor is the lazy-sequence form of spec.md §6 `selectCursor`. This
// implementation is eager underneath (database/sql's *Rows are already
// consumed by the Result Set Handler before Query returns), so Cursor just
// wraps the already-materialized slice; the type exists so callers written
// against the streaming contract don't need to change if a future executor
// variant makes it genuinely lazy.
type Cursor struct {
	rows []any
	pos  int
}

func (c *Cursor) Next() (any, bool) {
	if c.pos >= len(c.rows) {
		return nil, false
	}
	v := c.rows[c.pos]
	c.pos++
	return v, true
}

func (c *Cursor) Close() error { return nil }

// SelectCursor runs a SELECT statement, returning a Cursor over its rows.
func (s *Session) SelectCursor(ctx context.Context, id string, parameter any, bounds RowBounds) (*Cursor, error) {
	rows, err := s.SelectList(ctx, id, parameter, bounds)
	if err != nil {
		return nil, err
	}
	return &Cursor{rows: rows}, nil
}

func (s *Session) update(ctx context.Context, id string, parameter any) (sql.Result, error) {
	ms, err := s.statement(id)
	if err != nil {
		return nil, err
	}
	res, err := s.exec.Update(ctx, ms, parameter)
	if err != nil {
		XLog.Error("sqlbatis: %s %q failed: %v", ms.Command, id, err)
		return nil, wrapExecErr(id, err)
	}
	return res, nil
}

// Insert executes an INSERT statement, returning the affected row count.
// Any generated keys the statement's key generator resolved are written
// back into parameter by the Statement Handler before this returns.
func (s *Session) Insert(ctx context.Context, id string, parameter any) (int64, error) {
	res, err := s.update(ctx, id, parameter)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Update executes an UPDATE statement, returning the affected row count.
func (s *Session) Update(ctx context.Context, id string, parameter any) (int64, error) {
	res, err := s.update(ctx, id, parameter)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete executes a DELETE statement, returning the affected row count.
func (s *Session) Delete(ctx context.Context, id string, parameter any) (int64, error) {
	res, err := s.update(ctx, id, parameter)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FlushStatements forces any deferred batch work (Batch executor) to run
// now, without waiting for Commit.
func (s *Session) FlushStatements(ctx context.Context) error {
	return s.exec.FlushStatements(ctx)
}

// Commit commits the underlying transaction, flushing deferred batch work
// first, per spec.md §5.
func (s *Session) Commit(ctx context.Context) error {
	return s.exec.Commit(ctx)
}

// Rollback rolls back the underlying transaction and discards the local
// (and any staged second-level) cache.
func (s *Session) Rollback(ctx context.Context) error {
	return s.exec.Rollback(ctx)
}

// Close releases the session's connection/transaction. Idempotent.
func (s *Session) Close() error { return s.exec.Close() }

// ClearCache discards every entry in every namespace's second-level cache
// this session's Configuration knows about, per spec.md §6 `clearCache()`.
func (s *Session) ClearCache() {
	seen := map[string]bool{}
	for _, ms := range s.cfg.Registry.Statements() {
		if seen[ms.Namespace] {
			continue
		}
		seen[ms.Namespace] = true
		if c, ok := s.cfg.Registry.Cache(ms.Namespace); ok {
			c.Clear()
		}
	}
}

func wrapExecErr(id string, err error) error {
	if se, ok := err.(*Error); ok {
		return se
	}
	return newErr(ErrExecutionFailed, id, err, "%v", err)
}

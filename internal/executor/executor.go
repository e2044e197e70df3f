// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor implements the Executor (C13): Simple, Reuse, and Batch
// variants share the local (session-scoped) cache and connection lifecycle
// in Base, and Caching decorates any of them with the two-tier (namespace)
// cache from internal/cache, mirroring org.apache.ibatis.executor.Executor
// and its BaseExecutor/CachingExecutor split.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sqlbatis/sqlbatis/internal/cache"
	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/resultset"
	"github.com/sqlbatis/sqlbatis/internal/stmt"
	"github.com/sqlbatis/sqlbatis/internal/txn"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// ErrClosed is returned by any operation attempted on a closed Executor.
var ErrClosed = errors.New("executor: closed")

// Executor is the C13 contract: run one statement, flush deferred batch
// work, and follow the enclosing session's commit/rollback/close lifecycle.
// It also implements resultset.NestedSelector, so a result map's nested
// `<association>`/`<collection>` selects re-enter the same executor (and,
// transitively, the same local/second-level caches) as a top-level query.
type Executor interface {
	resultset.NestedSelector

	Query(ctx context.Context, ms *registry.MappedStatement, parameter any, offset, limit int) ([]any, error)
	Update(ctx context.Context, ms *registry.MappedStatement, parameter any) (sql.Result, error)
	FlushStatements(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
	Closed() bool

	// ClearLocalCacheIfStatementScoped discards the local cache when the
	// executor is configured for STATEMENT scope, per spec.md §4.13 step 3.
	// The session calls this once a top-level statement has fully returned;
	// nested selects recurse straight through self.Query without going back
	// through the session, so they never trigger it mid-statement.
	ClearLocalCacheIfStatementScoped()
}

// BaseAccessor is implemented by every Base-embedding variant, letting
// NewCaching rebind the underlying Base's self-reference to the decorator
// (see Base.bindSelf).
type BaseAccessor interface {
	BaseExecutor() *Base
}

// Base holds the state every variant shares: the transaction/connection
// source, the session-scoped ("local") result cache, and the self-reference
// nested selects recurse through.
type Base struct {
	mu    sync.Mutex
	tx    txn.Transaction
	reg   *registry.Registry
	convs *types.Registry

	stmtCfg   stmt.Config
	resultCfg resultset.Config

	localCache       map[string][]any
	localCacheScope  string // SESSION | STATEMENT, spec.md §6 localCacheScope
	closed           bool

	self Executor
}

// NewBase builds the shared executor state over tx. Callers construct one of
// Simple/Reuse/Batch on top of it and must call bindSelf so nested selects
// resolve correctly. localCacheScope is Configuration.LocalCacheScope
// ("SESSION" or "STATEMENT"); STATEMENT scope clears the local cache after
// every top-level statement instead of holding it for the session's life.
func NewBase(tx txn.Transaction, reg *registry.Registry, convs *types.Registry, stmtCfg stmt.Config, resultCfg resultset.Config, localCacheScope string) *Base {
	return &Base{
		tx: tx, reg: reg, convs: convs,
		stmtCfg: stmtCfg, resultCfg: resultCfg,
		localCache:      map[string][]any{},
		localCacheScope: localCacheScope,
	}
}

func (b *Base) bindSelf(self Executor) { b.self = self }

// BaseExecutor implements BaseAccessor.
func (b *Base) BaseExecutor() *Base { return b }

func (b *Base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Select implements resultset.NestedSelector by resolving statementID
// against the registry and re-entering self.Query with no row-range bound,
// per spec.md §4.12.c.
func (b *Base) Select(ctx context.Context, statementID string, parameter any) ([]any, error) {
	ms, ok := b.reg.Statement(statementID)
	if !ok {
		return nil, fmt.Errorf("executor: nested statement %q not found", statementID)
	}
	return b.self.Query(ctx, ms, parameter, -1, -1)
}

// clearLocalCache discards every cached query result for this session,
// called after any Update (a write can invalidate previously-read rows) and
// whenever a statement declares flushCache, per spec.md §4.7/§8.
func (b *Base) clearLocalCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.localCache = map[string][]any{}
}

// ClearLocalCacheIfStatementScoped implements the Executor method of the
// same name: a no-op under the default SESSION scope, otherwise an
// unconditional clearLocalCache.
func (b *Base) ClearLocalCacheIfStatementScoped() {
	if b.localCacheScope == "STATEMENT" {
		b.clearLocalCache()
	}
}

// runSelectKey executes ms's `<selectKey>` companion statement (looked up
// from the registry by ms.ID) and writes its single row of scalar values
// into parameter's key properties, positionally, per SPEC_FULL.md §12's
// BEFORE/AFTER key-generator ordering. A no-op if ms declares no key
// generator of the select-key kind.
func (b *Base) runSelectKey(ctx context.Context, conn stmt.Preparer, ms *registry.MappedStatement, parameter any) error {
	kg, ok := b.reg.KeyGenerator(ms.ID)
	if !ok {
		return nil
	}
	skMS, ok := b.reg.Statement(kg.StatementID)
	if !ok {
		return fmt.Errorf("executor: selectKey statement %q not found", kg.StatementID)
	}
	h := stmt.New(skMS, b.convs, b.stmtCfg)
	rows, _, err := h.Query(ctx, conn, parameter)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if !rows.Next() {
		return rows.Err()
	}
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return err
	}
	for i, prop := range kg.KeyProperties {
		if i >= len(dest) {
			break
		}
		conv := b.convs.Resolve(reflect.TypeOf(dest[i]), types.Unspecified)
		val, err := conv.Decode(dest[i])
		if err != nil {
			return err
		}
		reflectx.SetProperty(parameter, prop, val)
	}
	return nil
}

// withLocalCache returns the cached objects for key if present, else runs
// produce, caches its result, and returns it.
func (b *Base) withLocalCache(key string, produce func() ([]any, error)) ([]any, error) {
	b.mu.Lock()
	if cached, ok := b.localCache[key]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.mu.Unlock()

	objs, err := produce()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.localCache[key] = objs
	b.mu.Unlock()
	return objs, nil
}

// cacheKey builds the local-cache key for one query invocation: statement
// id, row range, rendered SQL text, and the parameter's formatted value, the
// same component order as the Cache Key of spec.md §3/§8.
func (b *Base) cacheKey(ms *registry.MappedStatement, parameter any, offset, limit int, sqlText string) string {
	k := cache.NewKey()
	k.Update(ms.ID)
	k.Update(offset)
	k.Update(limit)
	k.Update(sqlText)
	k.Update(fmt.Sprintf("%#v", parameter))
	return k.String()
}

// Commit flushes any deferred batch work, then commits the underlying
// transaction, per spec.md §5 "commit flushes pending batched statements
// first."
func (b *Base) Commit(ctx context.Context) error {
	if err := b.self.FlushStatements(ctx); err != nil {
		return err
	}
	return b.tx.Commit()
}

// Rollback discards deferred batch work implicitly (the concrete variant's
// queue is simply dropped in its own Close/Rollback override) and rolls the
// transaction back.
func (b *Base) Rollback(ctx context.Context) error {
	b.clearLocalCache()
	return b.tx.Rollback()
}

// Close marks the executor closed and releases its transaction/connection.
// Idempotent.
func (b *Base) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.localCache = map[string][]any{}
	b.mu.Unlock()
	return b.tx.Close()
}

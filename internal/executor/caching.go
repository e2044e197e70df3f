// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sqlbatis/sqlbatis/internal/cache"
	"github.com/sqlbatis/sqlbatis/internal/registry"
)

// Caching decorates another Executor with the two-tier (namespace-scoped)
// cache of internal/cache, mirroring org.apache.ibatis.executor.CachingExecutor:
// a hit against a statement's namespace cache short-circuits the inner
// executor entirely; a miss delegates and stages the result via the
// session's TransactionManager, only becoming visible to other sessions on
// Commit (spec.md §4.7).
type Caching struct {
	inner      Executor
	reg        *registry.Registry
	tcm        *cache.TransactionManager
	databaseID string
}

// NewCaching wraps inner with the namespace cache lookup, rebinding inner's
// nested-select self-reference to the decorator so nested
// `<association>`/`<collection>` selects also participate in the cache
// (spec.md §4.12/§4.7 combined).
func NewCaching(inner Executor, reg *registry.Registry, databaseID string) *Caching {
	c := &Caching{inner: inner, reg: reg, tcm: cache.NewTransactionManager(), databaseID: databaseID}
	if ba, ok := inner.(BaseAccessor); ok {
		ba.BaseExecutor().bindSelf(c)
	}
	return c
}

func (c *Caching) cacheKey(ms *registry.MappedStatement, parameter any, offset, limit int) (string, error) {
	bsql, err := ms.CachedBoundSQL(parameter, c.databaseID)
	if err != nil {
		return "", err
	}
	k := cache.NewKey()
	k.Update(ms.ID)
	k.Update(offset)
	k.Update(limit)
	k.Update(bsql.SQL)
	k.Update(fmt.Sprintf("%#v", parameter))
	return k.String(), nil
}

func (c *Caching) Query(ctx context.Context, ms *registry.MappedStatement, parameter any, offset, limit int) ([]any, error) {
	nsCache, ok := c.reg.Cache(ms.Namespace)
	if !ok || !ms.UseCache {
		return c.inner.Query(ctx, ms, parameter, offset, limit)
	}
	if ms.FlushCache {
		c.tcm.Clear(nsCache)
	}
	key, err := c.cacheKey(ms, parameter, offset, limit)
	if err != nil {
		return nil, err
	}
	if cached, ok := c.tcm.Get(nsCache, key); ok {
		return cached.([]any), nil
	}
	objs, err := c.inner.Query(ctx, ms, parameter, offset, limit)
	if err != nil {
		return nil, err
	}
	c.tcm.Put(nsCache, key, objs)
	return objs, nil
}

func (c *Caching) Update(ctx context.Context, ms *registry.MappedStatement, parameter any) (sql.Result, error) {
	if nsCache, ok := c.reg.Cache(ms.Namespace); ok && ms.FlushCache {
		c.tcm.Clear(nsCache)
	}
	return c.inner.Update(ctx, ms, parameter)
}

// Select implements resultset.NestedSelector by resolving statementID and
// re-entering Query, the same as Base.Select, so a nested select observes
// this decorator's cache too.
func (c *Caching) Select(ctx context.Context, statementID string, parameter any) ([]any, error) {
	ms, ok := c.reg.Statement(statementID)
	if !ok {
		return nil, fmt.Errorf("executor: nested statement %q not found", statementID)
	}
	return c.Query(ctx, ms, parameter, -1, -1)
}

func (c *Caching) FlushStatements(ctx context.Context) error { return c.inner.FlushStatements(ctx) }

// Commit flushes deferred batch work and commits the transaction (via
// inner), then commits every namespace cache this session staged writes
// against.
func (c *Caching) Commit(ctx context.Context) error {
	if err := c.inner.Commit(ctx); err != nil {
		return err
	}
	c.tcm.Commit()
	return nil
}

// Rollback rolls back the transaction and discards every staged cache
// write, releasing any blocking-cache locks left by missed reads.
func (c *Caching) Rollback(ctx context.Context) error {
	err := c.inner.Rollback(ctx)
	c.tcm.Rollback()
	return err
}

func (c *Caching) Close() error { return c.inner.Close() }
func (c *Caching) Closed() bool { return c.inner.Closed() }

func (c *Caching) ClearLocalCacheIfStatementScoped() { c.inner.ClearLocalCacheIfStatementScoped() }

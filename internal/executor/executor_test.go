// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"context"
	"reflect"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sqlbatis/sqlbatis/internal/cache"
	"github.com/sqlbatis/sqlbatis/internal/dynsql"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/resultset"
	"github.com/sqlbatis/sqlbatis/internal/stmt"
	"github.com/sqlbatis/sqlbatis/internal/txn"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

type Person struct {
	ID   int64
	Name string
}

func testBase(t *testing.T) (*Base, sqlmock.Sqlmock, *registry.Registry) {
	return testBaseWithScope(t, "SESSION")
}

func testBaseWithScope(t *testing.T, localCacheScope string) (*Base, sqlmock.Sqlmock, *registry.Registry) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	reg := registry.New()
	convs := types.NewRegistry()
	base := NewBase(txn.NewExternal(conn, nil), reg, convs,
		stmt.Config{Registry: reg},
		resultset.Config{Registry: reg, Converters: convs, DefaultAutoMapping: resultset.AutoMapPartial},
		localCacheScope,
	)
	return base, mock, reg
}

func selectStatement(id string, rm *registry.ResultMap, reg *registry.Registry) *registry.MappedStatement {
	reg.AddResultMap(rm)
	return &registry.MappedStatement{
		ID:           id,
		Namespace:    id[:len(id)-len(".select")],
		Command:      registry.Select,
		SQLSource:    &dynsql.Static{Text: "SELECT id, name FROM people WHERE id = #{id}"},
		Raw:          true,
		ResultMapIDs: []string{rm.ID},
		UseCache:     true,
	}
}

func autoMapTrue() *bool { b := true; return &b }

func TestSimpleQuery(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewSimple(base)

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	out, err := e.Query(context.Background(), ms, map[string]any{"id": int64(1)}, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "ada", out[0].(*Person).Name)
}

func TestSimpleQueryUsesLocalCache(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewSimple(base)

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	ctx := context.Background()
	param := map[string]any{"id": int64(1)}
	_, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)

	// second call with identical statement/params/bounds must not hit the
	// driver again: only one ExpectQuery was registered above.
	out, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStatementScopeClearsBetweenTopLevelStatementsNotNestedSelects pins the
// spec's Open Question decision (localCacheScope=STATEMENT clears the local
// cache after each top-level statement, but not between a parent query and
// the nested selects it triggers): the same statement/params queried twice
// under SESSION scope hits the local cache the second time; under STATEMENT
// scope, simulating the session's post-top-level-statement call to
// ClearLocalCacheIfStatementScoped between the two queries, it doesn't.
func TestStatementScopeClearsBetweenTopLevelStatementsNotNestedSelects(t *testing.T) {
	base, mock, reg := testBaseWithScope(t, "STATEMENT")
	e := NewSimple(base)

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	ctx := context.Background()
	param := map[string]any{"id": int64(1)}
	_, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)

	// the session calls this once the top-level statement has fully
	// returned; a nested select triggered from within Query never does,
	// since it recurses through Base.Select -> e.Query directly.
	e.ClearLocalCacheIfStatementScoped()

	_, err = e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLocalCacheScopeIsNoopUnderDefaultSessionScope(t *testing.T) {
	base, mock, reg := testBase(t) // default SESSION scope
	e := NewSimple(base)

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	ctx := context.Background()
	param := map[string]any{"id": int64(1)}
	_, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)

	e.ClearLocalCacheIfStatementScoped() // no-op under SESSION scope

	out, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet()) // still only one ExpectQuery consumed
}

func TestSimpleUpdateClearsLocalCache(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewSimple(base)

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	mock.ExpectExec(`UPDATE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada lovelace"))

	ctx := context.Background()
	param := map[string]any{"id": int64(1)}
	_, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)

	updateMs := &registry.MappedStatement{
		ID:        "People.update",
		Namespace: "People",
		Command:   registry.Update,
		SQLSource: &dynsql.Static{Text: "UPDATE people SET name = #{name} WHERE id = #{id}"},
		Raw:       true,
	}
	_, err = e.Update(ctx, updateMs, map[string]any{"id": int64(1), "name": "ada lovelace"})
	require.NoError(t, err)

	out, err := e.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	require.Equal(t, "ada lovelace", out[0].(*Person).Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSimpleClosedRejectsCalls(t *testing.T) {
	base, _, reg := testBase(t)
	e := NewSimple(base)
	require.NoError(t, e.Close())
	require.True(t, e.Closed())

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{})}
	ms := selectStatement("People.select", rm, reg)
	_, err := e.Query(context.Background(), ms, nil, 0, -1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestReuseQueryPreparesOnce(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewReuse(base)

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)

	prep := mock.ExpectPrepare(`SELECT id, name FROM people WHERE id = \?`)
	prep.ExpectQuery().WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	prep.ExpectQuery().WithArgs(int64(2)).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "grace"))

	ctx := context.Background()
	_, err := e.Query(ctx, ms, map[string]any{"id": int64(1)}, 0, -1)
	require.NoError(t, err)
	_, err = e.Query(ctx, ms, map[string]any{"id": int64(2)}, 0, -1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchQueuesUpdatesUntilFlush(t *testing.T) {
	base, mock, _ := testBase(t)
	e := NewBatch(base)

	insertMs := &registry.MappedStatement{
		ID:        "People.insert",
		Namespace: "People",
		Command:   registry.Insert,
		SQLSource: &dynsql.Static{Text: "INSERT INTO people (name) VALUES (#{name})"},
		Raw:       true,
	}

	ctx := context.Background()
	res, err := e.Update(ctx, insertMs, map[string]any{"name": "ada"})
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	require.Equal(t, int64(0), affected, "a queued batch row reports nothing until flush")

	mock.ExpectExec(`INSERT INTO people`).WithArgs("ada").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO people`).WithArgs("grace").WillReturnResult(sqlmock.NewResult(2, 1))

	_, err = e.Update(ctx, insertMs, map[string]any{"name": "grace"})
	require.NoError(t, err)

	require.NoError(t, e.FlushStatements(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchQueryFlushesPendingWritesFirst(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewBatch(base)

	insertMs := &registry.MappedStatement{
		ID:        "People.insert",
		Namespace: "People",
		Command:   registry.Insert,
		SQLSource: &dynsql.Static{Text: "INSERT INTO people (name) VALUES (#{name})"},
		Raw:       true,
	}
	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	selectMs := selectStatement("People.select", rm, reg)

	ctx := context.Background()
	_, err := e.Update(ctx, insertMs, map[string]any{"name": "ada"})
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO people`).WithArgs("ada").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	out, err := e.Query(ctx, selectMs, map[string]any{"id": int64(1)}, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingShortCircuitsSecondCall(t *testing.T) {
	base, mock, reg := testBase(t)
	inner := NewSimple(base)
	c := NewCaching(inner, reg, "")

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)
	reg.AddCache("People", cache.NewStore("People"))

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	ctx := context.Background()
	param := map[string]any{"id": int64(1)}
	_, err := c.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)

	// staged writes only land in the namespace cache on Commit (spec.md
	// §4.7's TransactionalCacheManager): a repeat query before Commit still
	// reads through and misses, so commit first before proving the second
	// query is served from cache without touching the driver again.
	require.NoError(t, c.Commit(ctx))

	out, err := c.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

type Order struct {
	ID   int64
	Name string
}

// TestSimpleUpdateRunsSelectKeyBeforeMainStatement covers the `<selectKey
// order="BEFORE">` strategy (SPEC_FULL.md §12): the companion select must
// run, and its result must be written into the key property, before the
// main INSERT executes, since the INSERT's own SQL binds that property.
func TestSimpleUpdateRunsSelectKeyBeforeMainStatement(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewSimple(base)

	skMS := &registry.MappedStatement{
		ID:        "Orders.insert!selectKey",
		Namespace: "Orders",
		Command:   registry.Select,
		SQLSource: &dynsql.Static{Text: "SELECT nextval('orders_seq')"},
		Raw:       true,
	}
	reg.AddStatement(skMS, "")

	insertMs := &registry.MappedStatement{
		ID:               "Orders.insert",
		Namespace:        "Orders",
		Command:          registry.Insert,
		SQLSource:        &dynsql.Static{Text: "INSERT INTO orders (id, name) VALUES (#{ID}, #{Name})"},
		Raw:              true,
		KeyGeneratorKind: registry.KeyGenSelectBefore,
		KeyProperties:    []string{"ID"},
	}
	reg.AddKeyGenerator(insertMs.ID, &registry.KeyGenerator{
		StatementID:   skMS.ID,
		Order:         registry.KeyGenSelectBefore,
		KeyProperties: insertMs.KeyProperties,
	})

	mock.ExpectQuery(`SELECT nextval\('orders_seq'\)`).WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))
	mock.ExpectExec(`INSERT INTO orders`).WithArgs(int64(42), "widget").WillReturnResult(sqlmock.NewResult(0, 1))

	order := &Order{Name: "widget"}
	_, err := e.Update(context.Background(), insertMs, order)
	require.NoError(t, err)
	require.Equal(t, int64(42), order.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSimpleUpdateRunsSelectKeyAfterMainStatement covers `<selectKey
// order="AFTER">` (e.g. MySQL's LAST_INSERT_ID()): the companion select
// runs, and the key property is assigned, only once the INSERT has
// executed.
func TestSimpleUpdateRunsSelectKeyAfterMainStatement(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewSimple(base)

	skMS := &registry.MappedStatement{
		ID:        "Orders.insert!selectKey",
		Namespace: "Orders",
		Command:   registry.Select,
		SQLSource: &dynsql.Static{Text: "SELECT LAST_INSERT_ID()"},
		Raw:       true,
	}
	reg.AddStatement(skMS, "")

	insertMs := &registry.MappedStatement{
		ID:               "Orders.insert",
		Namespace:        "Orders",
		Command:          registry.Insert,
		SQLSource:        &dynsql.Static{Text: "INSERT INTO orders (name) VALUES (#{Name})"},
		Raw:              true,
		KeyGeneratorKind: registry.KeyGenSelectAfter,
		KeyProperties:    []string{"ID"},
	}
	reg.AddKeyGenerator(insertMs.ID, &registry.KeyGenerator{
		StatementID:   skMS.ID,
		Order:         registry.KeyGenSelectAfter,
		KeyProperties: insertMs.KeyProperties,
	})

	mock.ExpectExec(`INSERT INTO orders`).WithArgs("widget").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	order := &Order{Name: "widget"}
	_, err := e.Update(context.Background(), insertMs, order)
	require.NoError(t, err)
	require.Equal(t, int64(7), order.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestBatchFlushRunsSelectKeyAfterPerRow covers order="AFTER" under the
// Batch executor: each queued row's key must come from its own post-exec
// companion select, run against the same connection FlushStatements
// already holds open, not a single shared select for the whole batch.
func TestBatchFlushRunsSelectKeyAfterPerRow(t *testing.T) {
	base, mock, reg := testBase(t)
	e := NewBatch(base)

	skMS := &registry.MappedStatement{
		ID:        "Orders.insert!selectKey",
		Namespace: "Orders",
		Command:   registry.Select,
		SQLSource: &dynsql.Static{Text: "SELECT LAST_INSERT_ID()"},
		Raw:       true,
	}
	reg.AddStatement(skMS, "")

	insertMs := &registry.MappedStatement{
		ID:               "Orders.insert",
		Namespace:        "Orders",
		Command:          registry.Insert,
		SQLSource:        &dynsql.Static{Text: "INSERT INTO orders (name) VALUES (#{Name})"},
		Raw:              true,
		KeyGeneratorKind: registry.KeyGenSelectAfter,
		KeyProperties:    []string{"ID"},
	}
	reg.AddKeyGenerator(insertMs.ID, &registry.KeyGenerator{
		StatementID:   skMS.ID,
		Order:         registry.KeyGenSelectAfter,
		KeyProperties: insertMs.KeyProperties,
	})

	ada := &Order{Name: "ada"}
	grace := &Order{Name: "grace"}
	ctx := context.Background()
	_, err := e.Update(ctx, insertMs, ada)
	require.NoError(t, err)
	_, err = e.Update(ctx, insertMs, grace)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO orders`).WithArgs("ada").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO orders`).WithArgs("grace").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	require.NoError(t, e.FlushStatements(ctx))
	require.Equal(t, int64(1), ada.ID)
	require.Equal(t, int64(2), grace.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingSkipsCacheWhenStatementOptsOut(t *testing.T) {
	base, mock, reg := testBase(t)
	inner := NewSimple(base)
	c := NewCaching(inner, reg, "")

	rm := &registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	ms := selectStatement("People.select", rm, reg)
	ms.UseCache = false
	reg.AddCache("People", cache.NewStore("People"))

	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	mock.ExpectQuery(`SELECT id, name FROM people WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	ctx := context.Background()
	param := map[string]any{"id": int64(1)}
	_, err := c.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	// Commit would publish a namespace-cache entry, and dropping the session
	// cache leaves the namespace cache as the only place a second hit could
	// come from.
	require.NoError(t, c.Commit(ctx))
	inner.clearLocalCache()
	_, err = c.Query(ctx, ms, param, 0, -1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

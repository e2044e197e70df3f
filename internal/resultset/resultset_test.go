// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package resultset

import (
	"context"
	"reflect"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

type Person struct {
	ID   int64
	Name string
}

func newRegistryWithMap(rm *registry.ResultMap) *registry.Registry {
	reg := registry.New()
	reg.AddResultMap(rm)
	return reg
}

func autoMapTrue() *bool { b := true; return &b }

func TestHandleMapFallback(t *testing.T) {
	reg := newRegistryWithMap(&registry.ResultMap{ID: "anon", AutoMapping: autoMapTrue()})
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.select", ResultMapIDs: []string{"anon"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	m, ok := out[0].(map[string]any)
	require.True(t, ok, "expected map[string]any, got %T", out[0])
	require.Equal(t, int64(1), m["id"])
	require.Equal(t, "ada", m["name"])
}

func TestHandleStructAutoMap(t *testing.T) {
	reg := newRegistryWithMap(&registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()})
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "ada").
		AddRow(int64(2), "grace"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.selectAll", ResultMapIDs: []string{"person"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "ada", out[0].(*Person).Name)
	require.Equal(t, "grace", out[1].(*Person).Name)
}

// UserWithSnakeColumn's FullName field only auto-maps from a "full_name"
// column when MapUnderscoreToCamelCase is enabled (SPEC_FULL.md §12).
type UserWithSnakeColumn struct {
	ID       int64
	FullName string
}

func TestHandleStructAutoMapDisabledUnderscoreDoesNotFold(t *testing.T) {
	reg := newRegistryWithMap(&registry.ResultMap{ID: "user", Type: reflect.TypeOf(UserWithSnakeColumn{}), AutoMapping: autoMapTrue()})
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).AddRow(int64(1), "ada"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.selectOne", ResultMapIDs: []string{"user"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	u := out[0].(*UserWithSnakeColumn)
	require.Equal(t, int64(1), u.ID)
	require.Empty(t, u.FullName, "full_name must not auto-map onto FullName with mapUnderscoreToCamelCase disabled")
}

func TestHandleStructAutoMapEnabledUnderscoreFolds(t *testing.T) {
	reg := newRegistryWithMap(&registry.ResultMap{ID: "user", Type: reflect.TypeOf(UserWithSnakeColumn{}), AutoMapping: autoMapTrue()})
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial, MapUnderscoreToCamelCase: true}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).AddRow(int64(1), "ada lovelace"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.selectOne", ResultMapIDs: []string{"user"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	u := out[0].(*UserWithSnakeColumn)
	require.Equal(t, int64(1), u.ID)
	require.Equal(t, "ada lovelace", u.FullName)
}

func TestHandleRowBounds(t *testing.T) {
	reg := newRegistryWithMap(&registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()})
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "ada").
		AddRow(int64(2), "grace").
		AddRow(int64(3), "hopper"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.selectAll", ResultMapIDs: []string{"person"}}
	out, err := h.Handle(context.Background(), rows, ms, 1, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "grace", out[0].(*Person).Name)
}

func TestHandleIdentityDeduplicatesRows(t *testing.T) {
	rm := &registry.ResultMap{
		ID:   "person",
		Type: reflect.TypeOf(Person{}),
		Mappings: []registry.ResultMapping{
			{Property: "ID", Column: "id", Flags: []registry.Flag{registry.FlagID}},
		},
		AutoMapping: autoMapTrue(),
	}
	reg := newRegistryWithMap(rm)
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	// two physical rows sharing the same identity column, as a join against
	// a one-to-many association might produce for the "one" side.
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "ada").
		AddRow(int64(1), "ada"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.select", ResultMapIDs: []string{"person"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestHandleDiscriminatorPicksCase(t *testing.T) {
	dogMap := &registry.ResultMap{ID: "dog", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	catMap := &registry.ResultMap{ID: "cat", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()}
	base := &registry.ResultMap{
		ID: "animal",
		Discriminator: &registry.Discriminator{
			Column: "kind",
			Cases:  map[string]string{"dog": "dog", "cat": "cat"},
		},
	}
	reg := registry.New()
	reg.AddResultMap(dogMap)
	reg.AddResultMap(catMap)
	reg.AddResultMap(base)
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"kind", "name"}).AddRow("cat", "whiskers"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.select", ResultMapIDs: []string{"animal"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "whiskers", out[0].(*Person).Name)
}

func TestHandleUnknownColumnFailing(t *testing.T) {
	reg := newRegistryWithMap(&registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()})
	h := New(Config{Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial, UnknownColumnBehavior: "FAILING"}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "nickname"}).AddRow(int64(1), "ada", "countess"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.select", ResultMapIDs: []string{"person"}}
	_, err = h.Handle(context.Background(), rows, ms, 0, -1)
	require.Error(t, err)
	var matErr *MaterializationError
	require.ErrorAs(t, err, &matErr)
	var colErr *UnknownColumnError
	require.ErrorAs(t, err, &colErr)
	require.Equal(t, "nickname", colErr.Column)
}

func TestHandleUnknownColumnWarningLogsAndContinues(t *testing.T) {
	var logged []string
	reg := newRegistryWithMap(&registry.ResultMap{ID: "person", Type: reflect.TypeOf(Person{}), AutoMapping: autoMapTrue()})
	h := New(Config{
		Registry: reg, Converters: types.NewRegistry(), DefaultAutoMapping: AutoMapPartial,
		UnknownColumnBehavior: "WARNING",
		Logger:                func(msg string) { logged = append(logged, msg) },
	}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "nickname"}).AddRow(int64(1), "ada", "countess"))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.select", ResultMapIDs: []string{"person"}}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "ada", out[0].(*Person).Name)
	require.Len(t, logged, 1)
}

func TestHandleNoResultMapsReturnsEmpty(t *testing.T) {
	reg := registry.New()
	h := New(Config{Registry: reg, Converters: types.NewRegistry()}, nil)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	rows, err := db.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ms := &registry.MappedStatement{ID: "T.raw"}
	out, err := h.Handle(context.Background(), rows, ms, 0, -1)
	require.NoError(t, err)
	require.Nil(t, out)
}

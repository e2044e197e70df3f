// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// User is the sample result-mapping target used throughout this file: its
// exported fields collide case-insensitively with the driver's reported
// column names via internal/reflectx.Canonical.
type User struct {
	ID   int64
	Name string
}

const userMapping = `<mapper namespace="User">
	<select id="selectById" resultType="User">
		SELECT id, name FROM users WHERE id = #{id}
	</select>
	<select id="selectAll" resultType="User">
		SELECT id, name FROM users
	</select>
	<insert id="insert">
		INSERT INTO users (name) VALUES (#{name})
	</insert>
	<update id="rename">
		UPDATE users SET name = #{name} WHERE id = #{id}
	</update>
	<delete id="deleteById">
		DELETE FROM users WHERE id = #{id}
	</delete>
</mapper>`

func newTestConfig(t *testing.T) (*Configuration, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := New()
	cfg.RegisterAlias("User", User{})
	cfg.AddEnvironment(&Environment{ID: "test", DB: db, AutoCommit: true})
	require.NoError(t, cfg.AddMapping([]byte(userMapping)))
	return cfg, mock
}

func TestSessionSelectOne(t *testing.T) {
	cfg, mock := newTestConfig(t)
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada")
	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \?`).WithArgs(int64(1)).WillReturnRows(rows)

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	row, err := sess.SelectOne(context.Background(), "User.selectById", Params(int64(1)))
	require.NoError(t, err)
	require.NotNil(t, row)
	u, ok := row.(*User)
	require.True(t, ok, "expected *User, got %T", row)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "ada", u.Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionSelectOneNoRows(t *testing.T) {
	cfg, mock := newTestConfig(t)
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \?`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	row, err := sess.SelectOne(context.Background(), "User.selectById", Params(int64(99)))
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestSessionSelectList(t *testing.T) {
	cfg, mock := newTestConfig(t)
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "ada").
		AddRow(int64(2), "grace")
	mock.ExpectQuery(`SELECT id, name FROM users`).WillReturnRows(rows)

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	got, err := sess.SelectList(context.Background(), "User.selectAll", nil, NoRowBounds)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ada", got[0].(*User).Name)
	assert.Equal(t, "grace", got[1].(*User).Name)
}

// TestSessionLocalCacheScopeStatementDoesNotSurviveBetweenTopLevelSelects
// pins spec.md §9's Open Question decision for LocalCacheScope=STATEMENT:
// the local cache is cleared once a top-level statement returns, so an
// identical repeat Select re-hits the driver instead of the local cache
// (unlike the default SESSION scope, per TestSessionSelectList's sibling
// cache-hit behavior exercised in internal/executor).
func TestSessionLocalCacheScopeStatementDoesNotSurviveBetweenTopLevelSelects(t *testing.T) {
	cfg, mock := newTestConfig(t)
	cfg.LocalCacheScope = "STATEMENT"
	cfg.CacheEnabled = false // isolate the local (per-session) cache from the second-level cache
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \?`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \?`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.SelectOne(context.Background(), "User.selectById", Params(int64(1)))
	require.NoError(t, err)
	_, err = sess.SelectOne(context.Background(), "User.selectById", Params(int64(1)))
	require.NoError(t, err)

	// both mocked queries were consumed: the second call missed the local
	// cache instead of being served from it.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionInsertUpdateDelete(t *testing.T) {
	cfg, mock := newTestConfig(t)
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO users`).WithArgs("ada").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE users SET name`).WithArgs("ada lovelace", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM users`).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	ctx := context.Background()
	affected, err := sess.Insert(ctx, "User.insert", Params(Named("name", "ada")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = sess.Update(ctx, "User.rename", Params(Named("name", "ada lovelace"), Named("id", int64(1))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = sess.Delete(ctx, "User.deleteById", Params(int64(1)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionUnknownStatement(t *testing.T) {
	cfg, _ := newTestConfig(t)
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.SelectOne(context.Background(), "User.noSuchStatement", nil)
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrStatementNotFound, se.Kind)
}

// userMapper exercises GetMapper's function-struct proxy: each field's
// name (or its sqlbatis tag) resolves to a "User.<name>" statement id.
type userMapper struct {
	SelectByID func(ctx context.Context, id int64) (*User, error)    `sqlbatis:"selectById"`
	SelectAll  func(ctx context.Context) ([]*User, error)            `sqlbatis:"selectAll"`
	Insert     func(ctx context.Context, name string) (int64, error) `sqlbatis:"insert"`
}

func TestGetMapper(t *testing.T) {
	cfg, mock := newTestConfig(t)
	cfg.RegisterMapper("User", &userMapper{})
	factory, err := NewSessionFactory(cfg)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name FROM users WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada"))
	mock.ExpectQuery(`SELECT id, name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ada").AddRow(int64(2), "grace"))
	mock.ExpectExec(`INSERT INTO users`).WithArgs("hopper").WillReturnResult(sqlmock.NewResult(3, 1))

	sess, err := factory.OpenSession()
	require.NoError(t, err)
	defer sess.Close()

	var m userMapper
	require.NoError(t, sess.GetMapper(&m))

	u, err := m.SelectByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "ada", u.Name)

	all, err := m.SelectAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	affected, err := m.Insert(context.Background(), "hopper")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestConfigurationBuildIsIdempotent(t *testing.T) {
	cfg, _ := newTestConfig(t)
	require.NoError(t, cfg.Build())
	require.NoError(t, cfg.Build())
}

func TestFromPrefsRejectsNilPrefs(t *testing.T) {
	// XLog.Panic (the teacher's XOrm.Init uses the same guard) halts the
	// call rather than just setting an error return.
	assert.Panics(t, func() { FromPrefs(nil, nil) })
}

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/eframework-org/GO.UTIL/XPrefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeedsDocumentedDefaults(t *testing.T) {
	cfg := New()
	assert.True(t, cfg.CacheEnabled)
	assert.True(t, cfg.UseColumnLabel)
	assert.Equal(t, AutoMapPartial, cfg.AutoMappingBehavior)
	assert.Equal(t, UnknownColumnNone, cfg.AutoMappingUnknownColumnBehavior)
	assert.Equal(t, ExecutorSimple, cfg.DefaultExecutorType)
	assert.Equal(t, "SESSION", cfg.LocalCacheScope)
}

func TestRegisterAliasUnwrapsPointerSample(t *testing.T) {
	cfg := New()
	cfg.RegisterAlias("User", &User{})

	typ, ok := cfg.Registry.ResolveAlias("User")
	require.True(t, ok)
	assert.Equal(t, "User", typ.Name())
}

func TestAddEnvironmentSelectsFirstAsDefault(t *testing.T) {
	cfg := New()
	db1, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db1.Close()
	db2, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db2.Close()

	cfg.AddEnvironment(&Environment{ID: "primary", DB: db1, AutoCommit: true})
	cfg.AddEnvironment(&Environment{ID: "secondary", DB: db2, AutoCommit: true})

	env, err := cfg.environment("")
	require.NoError(t, err)
	assert.Equal(t, "primary", env.ID)

	cfg.SetDefaultEnvironment("secondary")
	env, err = cfg.environment("")
	require.NoError(t, err)
	assert.Equal(t, "secondary", env.ID)
}

func TestEnvironmentUnknownIDErrors(t *testing.T) {
	cfg := New()
	_, err := cfg.environment("missing")
	require.Error(t, err)
}

func TestFromPrefsBuildsEnvironmentFromBlock(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	prefs := XPrefs.New().
		Set("SqlBatis/CacheEnabled", false).
		Set("SqlBatis/DefaultExecutorType", "reuse").
		Set("SqlBatis/DefaultFetchSize", 50).
		Set("SqlBatis/Environment/main", XPrefs.New().
			Set("MaxActive", 10).
			Set("MaxIdle", 5).
			Set("Transactional", false))

	cfg, err := FromPrefs(prefs, map[string]*sql.DB{"main": db})
	require.NoError(t, err)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, ExecutorReuse, cfg.DefaultExecutorType)
	assert.Equal(t, 50, cfg.DefaultFetchSize)

	env, err := cfg.environment("main")
	require.NoError(t, err)
	assert.Same(t, db, env.DB)
	assert.True(t, env.Managed)
	assert.True(t, env.AutoCommit) // Transactional=false inverts to AutoCommit=true
	assert.Equal(t, 10, env.Pool.MaxActive)
	assert.Equal(t, 5, env.Pool.MaxIdle)
}

func TestFromPrefsSkipsEnvironmentWithNoSuppliedDB(t *testing.T) {
	prefs := XPrefs.New().
		Set("SqlBatis/Environment/orphan", XPrefs.New().
			Set("MaxActive", 10).
			Set("MaxIdle", 5))

	cfg, err := FromPrefs(prefs, map[string]*sql.DB{})
	require.NoError(t, err)
	assert.Empty(t, cfg.Environments)
}

func TestBuildIsIdempotentAndFreezesRegistry(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Build())
	require.NoError(t, cfg.Build())
	assert.True(t, cfg.built)
}

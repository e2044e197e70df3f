// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"

	"github.com/sqlbatis/sqlbatis/internal/executor"
	"github.com/sqlbatis/sqlbatis/internal/mapping"
	"github.com/sqlbatis/sqlbatis/internal/pool"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// ExecutorKind selects the default C13 executor variant a session opens
// with, per spec.md §6 defaultExecutorType.
type ExecutorKind string

const (
	ExecutorSimple ExecutorKind = "SIMPLE"
	ExecutorReuse  ExecutorKind = "REUSE"
	ExecutorBatch  ExecutorKind = "BATCH"
)

// AutoMappingBehavior mirrors spec.md §6 autoMappingBehavior.
type AutoMappingBehavior string

const (
	AutoMapNone    AutoMappingBehavior = "NONE"
	AutoMapPartial AutoMappingBehavior = "PARTIAL"
	AutoMapFull    AutoMappingBehavior = "FULL"
)

// UnknownColumnBehavior mirrors spec.md §6 autoMappingUnknownColumnBehavior.
type UnknownColumnBehavior string

const (
	UnknownColumnNone    UnknownColumnBehavior = "NONE"
	UnknownColumnWarning UnknownColumnBehavior = "WARNING"
	UnknownColumnFailing UnknownColumnBehavior = "FAILING"
)

// Environment binds one already-open *sql.DB (the caller registers its
// driver import, e.g. `_ "github.com/go-sql-driver/mysql"`, the idiomatic
// Go analogue of the markup's data-source factory) to a connection Pool and
// a transaction mode, per spec.md §6 "environment definitions".
type Environment struct {
	ID         string
	DB         *sql.DB
	Pool       pool.Config
	AutoCommit bool
	Isolation  sql.IsolationLevel

	// Managed records the transaction variant (spec.md §4.5). OpenSession
	// does not read it: a session runs a Managed transaction over the pool
	// unless it is opened with the WithConn option, which wraps a
	// caller-supplied *sql.Conn/*sql.Tx pair.
	Managed bool
}

// Configuration is the root configuration document of spec.md §6: global
// settings, environments, type aliases, converters, and compiled mapping
// documents, built either programmatically or from an XPrefs asset the way
// the teacher's XOrm.initOrm walks XPrefs.IBase keys.
type Configuration struct {
	CacheEnabled                    bool
	LazyLoadingEnabled              bool
	AggressiveLazyLoading           bool
	MultipleResultSetsEnabled       bool
	// UseColumnLabel is accepted for spec.md §6 compatibility but not
	// consulted: database/sql's driver interface has no analogue of JDBC's
	// ResultSetMetaData column-label-vs-column-name distinction (Rows.Columns
	// always returns the driver's chosen label), so there is nothing for
	// this setting to switch between.
	UseColumnLabel                  bool
	UseGeneratedKeys                bool
	AutoMappingBehavior             AutoMappingBehavior
	AutoMappingUnknownColumnBehavior UnknownColumnBehavior
	DefaultExecutorType             ExecutorKind
	DefaultStatementTimeout         time.Duration
	DefaultFetchSize                int
	// MapUnderscoreToCamelCase governs only the Result Set Handler's
	// auto-mapping of unmapped columns onto destination properties
	// (SPEC_FULL.md §12): when true, "user_name" auto-maps onto property
	// "UserName". Explicit <result column="..."/> mappings, discriminators,
	// and identity columns always match case-insensitively regardless of
	// this setting.
	MapUnderscoreToCamelCase        bool
	LocalCacheScope                 string // SESSION | STATEMENT
	JdbcTypeForNull                 types.JDBCType
	CallSettersOnNulls              bool
	ReturnInstanceForEmptyRow       bool
	UseActualParamName              bool

	// DatabaseIDProvider resolves the opaque databaseId selector from a
	// live *sql.DB, e.g. by inspecting the driver-reported product name,
	// the SPEC_FULL.md §12 supplemented hook (original source's pluggable
	// DatabaseIdProvider).
	DatabaseIDProvider func(*sql.DB) (string, error)

	Environments map[string]*Environment
	defaultEnv   string

	Registry   *registry.Registry
	Converters *types.Registry

	databaseID string
	built      bool
}

// New builds a Configuration seeded with the documented defaults of
// spec.md §6.
func New() *Configuration {
	return &Configuration{
		CacheEnabled:               true,
		UseColumnLabel:             true,
		AutoMappingBehavior:        AutoMapPartial,
		AutoMappingUnknownColumnBehavior: UnknownColumnNone,
		DefaultExecutorType:        ExecutorSimple,
		DefaultFetchSize:           0,
		MapUnderscoreToCamelCase:   false,
		LocalCacheScope:            "SESSION",
		Environments:               map[string]*Environment{},
		Registry:                   registry.New(),
		Converters:                 types.NewRegistry(),
	}
}

// RegisterAlias associates a short markup name with a Go type (spec.md §6
// type aliases, SPEC_FULL.md §12).
func (c *Configuration) RegisterAlias(name string, sample any) {
	typ := reflect.TypeOf(sample)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	c.Registry.RegisterAlias(name, typ)
}

// RegisterConverter installs a custom type converter (spec.md §6 optional
// type-converter registrations).
func (c *Configuration) RegisterConverter(sample any, jdbcType types.JDBCType, conv types.Converter) {
	c.Converters.Register(reflect.TypeOf(sample), jdbcType, conv)
}

// RegisterMapper associates a mapper struct type (a pointer to a struct of
// function fields, per Session.GetMapper) with the namespace whose
// statements it invokes, so callers can open it with GetMapper without
// repeating the namespace at every call site.
func (c *Configuration) RegisterMapper(namespace string, mapperStructPtr any) {
	typ := reflect.TypeOf(mapperStructPtr)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	c.Registry.RegisterMapper(namespace, typ)
}

// AddEnvironment registers env. The first environment registered becomes the
// default used by OpenSession when the caller doesn't request one by id;
// later ones leave the default unchanged (see SetDefaultEnvironment).
func (c *Configuration) AddEnvironment(env *Environment) {
	c.Environments[env.ID] = env
	if c.defaultEnv == "" {
		c.defaultEnv = env.ID
	}
}

// SetDefaultEnvironment selects which registered environment OpenSession
// uses by default.
func (c *Configuration) SetDefaultEnvironment(id string) { c.defaultEnv = id }

// AddMapping compiles one mapping document's raw markup into the
// configuration's registry, per spec.md §6 "list of mapping references".
// Callers loading from files read the bytes themselves (spec.md's
// "resource path, URL, mapper interface, or package scan" forms all reduce
// to "here are the bytes" once resolved). Call AddEnvironment (and set a
// DatabaseIDProvider, if any) before AddMapping so per-databaseId statement
// selection sees the resolved id rather than "".
func (c *Configuration) AddMapping(raw []byte) error {
	if c.DatabaseIDProvider != nil && c.databaseID == "" {
		if env, ok := c.Environments[c.defaultEnv]; ok && env.DB != nil {
			if id, err := c.DatabaseIDProvider(env.DB); err == nil {
				c.databaseID = id
			}
		}
	}
	comp := mapping.New(c.Registry, c.databaseID, c.CacheEnabled)
	if err := comp.CompileDocument(raw); err != nil {
		XLog.Error("sqlbatis: compile mapping failed: %v", err)
		return newErr(ErrConfigMalformed, "", err, "compiling mapping document")
	}
	c.Registry.Retry()
	return nil
}

// Build resolves the databaseId (if a provider is configured), retries any
// deferred cross-file mapping references one last time, and marks the
// registry built (later additions are not rejected), per spec.md §4.8/§4.10 "Build() finalizes the registry."
func (c *Configuration) Build() error {
	if c.built {
		return nil
	}
	if c.DatabaseIDProvider != nil {
		if env, ok := c.Environments[c.defaultEnv]; ok && env.DB != nil {
			id, err := c.DatabaseIDProvider(env.DB)
			if err != nil {
				XLog.Warn("sqlbatis: databaseId provider failed: %v", err)
			} else {
				c.databaseID = id
			}
		}
	}
	if err := c.Registry.Build(); err != nil {
		XLog.Error("sqlbatis: mapping build incomplete: %v", err)
		return newErr(ErrConfigIncomplete, "", err, "unresolved mapping references")
	}
	c.built = true
	return nil
}

// FromPrefs loads global settings, environments, and mapping resources
// from an XPrefs asset the way the teacher's XOrm.initOrm walks
// XPrefs.IBase keys, under a "SqlBatis/..." prefix. Supported leaf keys:
// SqlBatis/CacheEnabled, SqlBatis/LazyLoadingEnabled, SqlBatis/DefaultExecutorType,
// SqlBatis/MapUnderscoreToCamelCase, SqlBatis/DefaultFetchSize,
// SqlBatis/DefaultStatementTimeout (seconds), and one
// SqlBatis/Environment/<id> block per registered *sql.DB the caller
// pre-opens and passes in via dbs.
func FromPrefs(prefs XPrefs.IBase, dbs map[string]*sql.DB) (*Configuration, error) {
	if prefs == nil {
		XLog.Panic("sqlbatis.FromPrefs: prefs is nil.")
		return nil, newErr(ErrConfigMalformed, "", nil, "prefs is nil")
	}
	cfg := New()

	for _, key := range prefs.Keys() {
		switch key {
		case "SqlBatis/CacheEnabled":
			cfg.CacheEnabled = toBool(prefs.Get(key))
		case "SqlBatis/LazyLoadingEnabled":
			cfg.LazyLoadingEnabled = toBool(prefs.Get(key))
		case "SqlBatis/MapUnderscoreToCamelCase":
			cfg.MapUnderscoreToCamelCase = toBool(prefs.Get(key))
		case "SqlBatis/DefaultExecutorType":
			cfg.DefaultExecutorType = ExecutorKind(strings.ToUpper(prefs.GetString(key)))
		case "SqlBatis/DefaultFetchSize":
			cfg.DefaultFetchSize = prefs.GetInt(key)
		case "SqlBatis/DefaultStatementTimeout":
			cfg.DefaultStatementTimeout = time.Duration(prefs.GetInt(key)) * time.Second
		}

		if !strings.HasPrefix(key, "SqlBatis/Environment/") {
			continue
		}
		parts := strings.Split(key, "/")
		if len(parts) < 3 {
			XLog.Error("sqlbatis.FromPrefs: invalid prefs key %v.", key)
			continue
		}
		envID := parts[2]
		base, ok := prefs.Get(key).(XPrefs.IBase)
		if !ok || base == nil {
			XLog.Error("sqlbatis.FromPrefs: invalid config for %v", key)
			continue
		}
		db, ok := dbs[envID]
		if !ok {
			XLog.Error("sqlbatis.FromPrefs: no *sql.DB supplied for environment %v", envID)
			continue
		}
		cfg.AddEnvironment(&Environment{
			ID:      envID,
			DB:      db,
			Managed: true,
			Pool: pool.Config{
				MaxActive: base.GetInt("MaxActive"),
				MaxIdle:   base.GetInt("MaxIdle"),
			},
			AutoCommit: !toBool(base.Get("Transactional")),
		})
	}

	if len(cfg.Environments) == 0 {
		XLog.Warn("sqlbatis.FromPrefs: no environments registered from prefs")
	}
	return cfg, nil
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	default:
		return false
	}
}

// newExecutor builds the default-executor-type Executor for one session's
// transaction, optionally decorated with the second-level cache.
func (c *Configuration) newExecutor(base *executor.Base) executor.Executor {
	var e executor.Executor
	switch c.DefaultExecutorType {
	case ExecutorReuse:
		e = executor.NewReuse(base)
	case ExecutorBatch:
		e = executor.NewBatch(base)
	default:
		e = executor.NewSimple(base)
	}
	if c.CacheEnabled {
		e = executor.NewCaching(e, c.Registry, c.databaseID)
	}
	return e
}

func (c *Configuration) environment(id string) (*Environment, error) {
	if id == "" {
		id = c.defaultEnv
	}
	env, ok := c.Environments[id]
	if !ok {
		return nil, fmt.Errorf("sqlbatis: environment %q not registered", id)
	}
	return env, nil
}

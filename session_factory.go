// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"database/sql"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"

	"github.com/sqlbatis/sqlbatis/internal/executor"
	"github.com/sqlbatis/sqlbatis/internal/pool"
	"github.com/sqlbatis/sqlbatis/internal/resultset"
	"github.com/sqlbatis/sqlbatis/internal/stmt"
	"github.com/sqlbatis/sqlbatis/internal/txn"
)

// pools memoizes one Pool per environment, since a Pool holds mutable state
// (active/idle wrappers) that must be shared across every session opened
// against the same environment.
type poolRegistry struct {
	byEnv map[string]*pool.Pool
}

// SessionFactory builds Sessions against a built Configuration, mirroring
// org.apache.ibatis.session.SqlSessionFactory: mapping-build errors already
// failed at Configuration.Build, so SessionFactory construction only fails
// on structurally invalid environments.
type SessionFactory struct {
	cfg   *Configuration
	pools poolRegistry
}

// NewSessionFactory builds a factory over cfg, calling Build if the caller
// hasn't already, per spec.md §6 "Mapping-build errors fail at
// session-factory construction."
func NewSessionFactory(cfg *Configuration) (*SessionFactory, error) {
	if err := cfg.Build(); err != nil {
		return nil, err
	}
	f := &SessionFactory{cfg: cfg, pools: poolRegistry{byEnv: map[string]*pool.Pool{}}}
	for id, env := range cfg.Environments {
		if env.DB == nil {
			continue
		}
		p := pool.New(env.DB, env.Pool)
		p.OnEvent(func(msg string) { XLog.Info("sqlbatis: pool[%s]: %s", id, msg) })
		f.pools.byEnv[id] = p
	}
	return f, nil
}

// SessionOption configures OpenSession.
type SessionOption func(*sessionOpts)

type sessionOpts struct {
	environment string
	autoCommit  *bool
	conn        *sql.Conn
	tx          *sql.Tx
}

// WithEnvironment selects a non-default registered Environment by id.
func WithEnvironment(id string) SessionOption {
	return func(o *sessionOpts) { o.environment = id }
}

// WithAutoCommit overrides the environment's configured autocommit mode
// for this session only.
func WithAutoCommit(auto bool) SessionOption {
	return func(o *sessionOpts) { o.autoCommit = &auto }
}

// WithConn opens the session against an externally-managed connection
// (and, optionally, an already-open transaction), the "External" variant
// of spec.md §4.5 — commit/rollback/close are then the caller's
// responsibility, not the session's.
func WithConn(conn *sql.Conn, tx *sql.Tx) SessionOption {
	return func(o *sessionOpts) { o.conn = conn; o.tx = tx }
}

// OpenSession builds a new Session, acquiring a pooled connection lazily on
// first use (spec.md §4.5 "obtains a pooled connection on first Conn()").
func (f *SessionFactory) OpenSession(opts ...SessionOption) (*Session, error) {
	var o sessionOpts
	for _, opt := range opts {
		opt(&o)
	}

	var transaction txn.Transaction
	if o.conn != nil {
		transaction = txn.NewExternal(o.conn, o.tx)
	} else {
		env, err := f.cfg.environment(o.environment)
		if err != nil {
			return nil, err
		}
		p, ok := f.pools.byEnv[env.ID]
		if !ok {
			return nil, newErr(ErrTransactionConfig, "", nil, "environment %q has no pool", env.ID)
		}
		autoCommit := env.AutoCommit
		if o.autoCommit != nil {
			autoCommit = *o.autoCommit
		}
		transaction = txn.NewManaged(p, autoCommit, env.Isolation)
	}

	stmtCfg := stmt.Config{
		DefaultFetchSize: f.cfg.DefaultFetchSize,
		DefaultTimeout:   f.cfg.DefaultStatementTimeout,
		DatabaseID:       f.cfg.databaseID,
		JdbcTypeForNull:  f.cfg.JdbcTypeForNull,
		Registry:         f.cfg.Registry,
	}
	resultCfg := resultset.Config{
		Registry:                 f.cfg.Registry,
		Converters:               f.cfg.Converters,
		DefaultAutoMapping:       resultset.AutoMappingBehavior(f.cfg.AutoMappingBehavior),
		UnknownColumnBehavior:    string(f.cfg.AutoMappingUnknownColumnBehavior),
		MapUnderscoreToCamelCase: f.cfg.MapUnderscoreToCamelCase,
		Logger:                   func(msg string) { XLog.Warn("sqlbatis: %s", msg) },
	}

	base := executor.NewBase(transaction, f.cfg.Registry, f.cfg.Converters, stmtCfg, resultCfg, f.cfg.LocalCacheScope)
	exec := f.cfg.newExecutor(base)

	return &Session{cfg: f.cfg, exec: exec}, nil
}

// ForceCloseEnvironment drops every pooled connection for id, as if the
// pool's parameters had just changed underneath it (spec.md §4.4
// "Force-close").
func (f *SessionFactory) ForceCloseEnvironment(id string) {
	if p, ok := f.pools.byEnv[id]; ok {
		p.ForceCloseAll()
	}
}

// StartIdlePool launches the optional idle-connection health sweeper
// (internal/pool.StartIdleSweeper) for the named environment's pool.
func (f *SessionFactory) StartIdlePool(id string, interval time.Duration) {
	if p, ok := f.pools.byEnv[id]; ok {
		p.StartIdleSweeper(interval)
	}
}

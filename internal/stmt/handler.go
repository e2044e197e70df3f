// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stmt implements the Statement Handler (C11): prepares driver
// statements from a MappedStatement + BoundSQL, binds parameters through
// the type conversion registry (C1), executes, and retrieves generated
// keys, mirroring org.apache.ibatis.executor.statement.
package stmt

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// Preparer is the subset of *sql.Conn / *sql.Tx the handler prepares
// statements against, letting the executor hand it either a bare pooled
// connection (autocommit) or an open transaction.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ExecutionError wraps a driver failure during prepare/bind/execute, the
// EXECUTION_FAILED kind of spec.md §7, carrying the statement id and SQL
// excerpt for diagnostics.
type ExecutionError struct {
	Statement string
	SQL       string
	Cause     error
}

func (e *ExecutionError) Error() string {
	excerpt := e.SQL
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	return fmt.Sprintf("stmt: statement %q failed: %v [sql: %s]", e.Statement, e.Cause, excerpt)
}
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Handler is the C11 contract: build bound SQL for parameter, prepare/bind/
// execute a query or update against conn.
type Handler interface {
	Query(ctx context.Context, conn Preparer, parameter any) (*sql.Rows, *dynsql.BoundSQL, error)
	Update(ctx context.Context, conn Preparer, parameter any) (sql.Result, *dynsql.BoundSQL, error)
}

// Config carries the configuration-level defaults the handler falls back
// to when a statement doesn't declare its own (spec.md §6 defaultFetchSize,
// defaultStatementTimeout).
type Config struct {
	DefaultFetchSize   int
	DefaultTimeout     time.Duration
	TransactionTimeout time.Duration // remaining time on the enclosing transaction, if any
	DatabaseID         string
	JdbcTypeForNull    types.JDBCType
	Registry           *registry.Registry // optional; enables callable OUT-parameter mode lookup
}

// base holds the fields shared by every variant.
type base struct {
	ms    *registry.MappedStatement
	convs *types.Registry
	cfg   Config
	reg   *registry.Registry
}

// New builds the Handler variant selected by ms.StatementKind.
func New(ms *registry.MappedStatement, convs *types.Registry, cfg Config) Handler {
	b := base{ms: ms, convs: convs, cfg: cfg, reg: cfg.Registry}
	switch ms.StatementKind {
	case registry.StatementCallable:
		return &callableHandler{b}
	case registry.StatementPlain:
		return &simpleHandler{b}
	default:
		return &preparedHandler{b}
	}
}

// effectiveTimeout resolves query timeout as min(statement, default,
// transaction-scoped) per spec.md §4.11/§5.
func (b *base) effectiveTimeout() time.Duration {
	t := b.cfg.DefaultTimeout
	if b.ms.Timeout > 0 {
		t = b.ms.Timeout
	}
	if b.cfg.TransactionTimeout > 0 && (t <= 0 || b.cfg.TransactionTimeout < t) {
		t = b.cfg.TransactionTimeout
	}
	return t
}

func (b *base) render(parameter any) (*dynsql.BoundSQL, error) {
	return b.ms.CachedBoundSQL(parameter, b.cfg.DatabaseID)
}

// bindArgs resolves each ParamSpec in bsql.Parameters to a driver value,
// per spec.md §4.11 "resolve value by property path from the caller
// parameter ... pick converter by (declared application type, declared or
// inferred driver type); bind."
func (b *base) bindArgs(bsql *dynsql.BoundSQL, parameter any) ([]any, error) {
	args := make([]any, 0, len(bsql.Parameters))
	for _, p := range bsql.Parameters {
		v, ok := resolveParam(p.Property, parameter, bsql.AdditionalParameters)
		if !ok {
			v = nil
		}
		jdbcType := types.JDBCType(p.JdbcType)
		appType := appTypeOf(v)
		conv := b.convs.Resolve(appType, jdbcType)
		bound, err := conv.Bind(v, jdbcType)
		if err != nil {
			return nil, &types.ConversionError{Op: "bind " + p.Property, Value: v, Cause: err}
		}
		args = append(args, bound)
	}
	return args, nil
}

// resolveParam looks up property against, in order: scoped additional
// parameters (bind/foreach-declared names), the parameter object itself
// (when property is empty or "_parameter"), a map key, the parameter
// itself when it is neither a struct nor a map (a lone scalar such as
// Params(42) answers to any property name), or a dotted struct path via
// reflectx.
func resolveParam(property string, parameter any, extra map[string]any) (any, bool) {
	if v, ok := extra[property]; ok {
		return v, true
	}
	if property == "" || property == "_parameter" {
		return parameter, true
	}
	if m, ok := parameter.(map[string]any); ok {
		if v, ok := m[property]; ok {
			return v, true
		}
		return reflectx.GetProperty(m, property)
	}
	if rv := reflect.Indirect(reflect.ValueOf(parameter)); rv.IsValid() && rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return parameter, true
	}
	return reflectx.GetProperty(parameter, property)
}

func appTypeOf(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}

func wrapExecErr(statementID, sqlText string, err error) error {
	if err == nil {
		return nil
	}
	return &ExecutionError{Statement: statementID, SQL: sqlText, Cause: err}
}

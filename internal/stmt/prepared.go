// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stmt

import (
	"context"
	"database/sql"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
	"github.com/sqlbatis/sqlbatis/internal/registry"
)

// preparedHandler is the PREPARED statement-kind variant of spec.md §4.11:
// binds parameters positionally via the BoundSQL's ParamSpec list and
// executes through database/sql's implicit prepare-execute-close path
// (Go's database/sql unifies "plain" and "prepared" JDBC statements behind
// one parameterized QueryContext/ExecContext call, so there is no
// separately observable "build SQL inline" step the way a raw JDBC
// Statement has — see DESIGN.md).
type preparedHandler struct{ base }

func (h *preparedHandler) Query(ctx context.Context, conn Preparer, parameter any) (*sql.Rows, *dynsql.BoundSQL, error) {
	bsql, err := h.render(parameter)
	if err != nil {
		return nil, nil, err
	}
	args, err := h.bindArgs(bsql, parameter)
	if err != nil {
		return nil, bsql, err
	}
	rows, err := conn.QueryContext(ctx, bsql.SQL, args...)
	if err != nil {
		return nil, bsql, wrapExecErr(h.ms.ID, bsql.SQL, err)
	}
	return rows, bsql, nil
}

func (h *preparedHandler) Update(ctx context.Context, conn Preparer, parameter any) (sql.Result, *dynsql.BoundSQL, error) {
	bsql, err := h.render(parameter)
	if err != nil {
		return nil, nil, err
	}
	args, err := h.bindArgs(bsql, parameter)
	if err != nil {
		return nil, bsql, err
	}
	res, err := conn.ExecContext(ctx, bsql.SQL, args...)
	if err != nil {
		return nil, bsql, wrapExecErr(h.ms.ID, bsql.SQL, err)
	}
	if h.ms.KeyGeneratorKind == registry.KeyGenDriver {
		AssignGeneratedKeys(res, h.ms, parameter)
	}
	return res, bsql, nil
}

// Render exposes base.render for callers (the Reuse executor) that manage
// their own *sql.Stmt cache instead of going through Query/Update.
func Render(h Handler, parameter any) (*dynsql.BoundSQL, error) {
	b, ok := h.(interface {
		render(any) (*dynsql.BoundSQL, error)
	})
	if !ok {
		return nil, nil
	}
	return b.render(parameter)
}

// BindArgs exposes base.bindArgs for the same callers as Render, so they can
// bind a previously rendered BoundSQL's parameters without re-preparing a
// statement through Query/Update.
func BindArgs(h Handler, bsql *dynsql.BoundSQL, parameter any) ([]any, error) {
	b, ok := h.(interface {
		bindArgs(*dynsql.BoundSQL, any) ([]any, error)
	})
	if !ok {
		return nil, nil
	}
	return b.bindArgs(bsql, parameter)
}

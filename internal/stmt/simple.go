// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stmt

import (
	"context"
	"database/sql"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
)

// simpleHandler is the STATEMENT statement-kind variant: same execution
// path as preparedHandler since database/sql has no separate
// non-parameterized Statement type, but it skips generated-key retrieval
// since a raw JDBC Statement in the source system never supports it.
type simpleHandler struct{ base }

func (h *simpleHandler) Query(ctx context.Context, conn Preparer, parameter any) (*sql.Rows, *dynsql.BoundSQL, error) {
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

func (h *simpleHandler) Update(ctx context.Context, conn Preparer, parameter any) (sql.Result, *dynsql.BoundSQL, error) {
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
	return res, bsql, nil
}

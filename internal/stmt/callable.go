// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stmt

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// callableHandler is the CALLABLE statement-kind variant of spec.md §4.11:
// binds IN parameters the same way preparedHandler does and additionally
// wraps OUT/INOUT-mode parameters in sql.Out so drivers that support
// stored-procedure output parameters (e.g. the mssql driver) can populate
// them; after a successful execute, writeBackOut decodes each populated
// destination and assigns it to the corresponding parameter object
// property. Drivers without sql.Out support simply ignore the wrapper and
// leave the destination untouched, so the OUT value stays unavailable — a
// limitation of database/sql's driver-neutral API surface rather than of
// this handler (see DESIGN.md).
type callableHandler struct{ base }

func (h *callableHandler) Query(ctx context.Context, conn Preparer, parameter any) (*sql.Rows, *dynsql.BoundSQL, error) {
	bsql, err := h.render(parameter)
	if err != nil {
		return nil, nil, err
	}
	args, outs, err := h.callableArgs(bsql, parameter)
	if err != nil {
		return nil, bsql, err
	}
	rows, err := conn.QueryContext(ctx, bsql.SQL, args...)
	if err != nil {
		return nil, bsql, wrapExecErr(h.ms.ID, bsql.SQL, err)
	}
	h.writeBackOut(parameter, outs)
	return rows, bsql, nil
}

func (h *callableHandler) Update(ctx context.Context, conn Preparer, parameter any) (sql.Result, *dynsql.BoundSQL, error) {
	bsql, err := h.render(parameter)
	if err != nil {
		return nil, nil, err
	}
	args, outs, err := h.callableArgs(bsql, parameter)
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
	h.writeBackOut(parameter, outs)
	return res, bsql, nil
}

// outBinding pairs an OUT/INOUT parameter's declared property and type with
// the sql.Out destination it was bound to, so the value the driver
// populates during execute can be decoded and copied back afterward.
type outBinding struct {
	Property string
	Dest     *any
	AppType  reflect.Type
	JDBCType types.JDBCType
}

// callableArgs binds IN parameters normally and wraps OUT/INOUT parameters
// in sql.Out so the driver can populate them post-execute, per spec.md
// §4.11 "registers OUT parameters by position, binds IN parameters." The
// returned outs must be passed to writeBackOut after a successful execute.
func (h *callableHandler) callableArgs(bsql *dynsql.BoundSQL, parameter any) ([]any, []outBinding, error) {
	args, err := h.bindArgs(bsql, parameter)
	if err != nil {
		return nil, nil, err
	}
	pm, _ := h.registryParamMap()
	if pm == nil {
		return args, nil, nil
	}
	byProperty := map[string]registry.ParameterMapping{}
	for _, m := range pm.Mappings {
		byProperty[m.Property] = m
	}
	var outs []outBinding
	for i, p := range bsql.Parameters {
		if m, ok := byProperty[p.Property]; ok && (m.Mode == registry.ModeOut || m.Mode == registry.ModeInOut) {
			dest := new(any)
			args[i] = sql.Out{Dest: dest, In: m.Mode == registry.ModeInOut}
			outs = append(outs, outBinding{Property: p.Property, Dest: dest, AppType: m.AppType, JDBCType: m.JDBCType})
		}
	}
	return args, outs, nil
}

// writeBackOut decodes each OUT/INOUT destination the driver populated
// during execute and assigns it to the corresponding property of parameter,
// per spec.md §4.11 "on execute, retrieves the driver-populated value and
// assigns it to the corresponding parameter object property." A driver
// without sql.Out support leaves Dest at its zero value (an untouched
// `any`, i.e. nil); decoding a nil OUT value is indistinguishable from a
// genuine NULL, so this silently no-ops rather than overwriting the
// property with a decoded nil (see DESIGN.md).
func (h *callableHandler) writeBackOut(parameter any, outs []outBinding) {
	for _, o := range outs {
		if *o.Dest == nil {
			continue
		}
		conv := h.convs.Resolve(o.AppType, o.JDBCType)
		val, err := conv.Decode(*o.Dest)
		if err != nil {
			continue
		}
		reflectx.SetProperty(parameter, o.Property, val)
	}
}

func (h *callableHandler) registryParamMap() (*registry.ParameterMap, bool) {
	return h.paramMapLookup(h.ms.ParameterMapID)
}

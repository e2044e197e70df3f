// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"context"
	"fmt"
	"reflect"

	"github.com/eframework-org/GO.UTIL/XLog"

	"github.com/sqlbatis/sqlbatis/internal/registry"
)

// ctxType lets GetMapper detect a leading context.Context argument on a
// mapper method without importing reflect at every call site.
var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// GetMapper populates every exported function-typed field of dst (a
// pointer to a caller-defined struct, previously registered with
// Configuration.RegisterMapper) with a stub that runs the mapped statement
// `namespace.<FieldName>` (or, with an `sqlbatis:"id"` struct tag,
// `namespace.<id>`), per spec.md §6 `getMapper(interfaceType)`.
//
// Go has no runtime facility to synthesize a new concrete type that
// satisfies an arbitrary interface (reflect.MakeFunc builds one function
// value at a time, and reflect.StructOf can't attach methods), so this
// package's mapper "proxy" is a struct of function fields instead of a
// literal interface implementation — the same shape callers already use
// for RPC client stubs. Each field's function signature drives both
// parameter packing (via Params, applied to every argument after an
// optional leading context.Context) and result decoding.
func (s *Session) GetMapper(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("sqlbatis: GetMapper: dst must be a pointer to a struct, got %T", dst)
	}
	namespace, ok := s.cfg.Registry.MapperNamespace(rv.Elem().Type())
	if !ok {
		return fmt.Errorf("sqlbatis: GetMapper: type %s was never registered via Configuration.RegisterMapper", rv.Elem().Type())
	}
	sv := rv.Elem()
	st := sv.Type()

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}
		fv := sv.Field(i)
		if fv.Kind() != reflect.Func {
			continue
		}
		methodName := field.Name
		if tag := field.Tag.Get("sqlbatis"); tag != "" {
			methodName = tag
		}
		statementID := namespace + "." + methodName
		fnType := field.Type
		fv.Set(reflect.MakeFunc(fnType, s.mapperStub(statementID, fnType)))
	}
	return nil
}

// mapperStub builds the reflect.MakeFunc body invoking statementID.
func (s *Session) mapperStub(statementID string, fnType reflect.Type) func([]reflect.Value) []reflect.Value {
	return func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		argStart := 0
		if fnType.NumIn() > 0 && fnType.In(0).Implements(ctxType) {
			ctx = in[0].Interface().(context.Context)
			argStart = 1
		}

		var packArgs []any
		for _, v := range in[argStart:] {
			packArgs = append(packArgs, v.Interface())
		}
		parameter := Params(packArgs...)

		ms, err := s.statement(statementID)
		if err != nil {
			return mapperError(fnType, err)
		}

		switch ms.Command {
		case registry.Select:
			return s.mapperSelectResult(ctx, statementID, parameter, fnType)
		default:
			affected, err := s.update(ctx, statementID, parameter)
			var rows int64
			if err == nil {
				rows, err = affected.RowsAffected()
			}
			return mapperUpdateResult(fnType, rows, err)
		}
	}
}

// mapperSelectResult runs a select statement and shapes its rows to
// fnType's declared return type: a slice type collects every row: a
// pointer or scalar type takes the first row (or the zero value if none).
func (s *Session) mapperSelectResult(ctx context.Context, statementID string, parameter any, fnType reflect.Type) []reflect.Value {
	if fnType.NumOut() == 0 {
		XLog.Warn("sqlbatis: mapper method for %q declares no return value", statementID)
		return nil
	}
	resultType := fnType.Out(0)

	if resultType.Kind() == reflect.Slice {
		rows, err := s.SelectList(ctx, statementID, parameter, NoRowBounds)
		if err != nil {
			return mapperError(fnType, err)
		}
		out := reflect.MakeSlice(resultType, 0, len(rows))
		for _, row := range rows {
			out = reflect.Append(out, coerce(row, resultType.Elem()))
		}
		return finishMapper(fnType, out, nil)
	}

	row, err := s.SelectOne(ctx, statementID, parameter)
	if err != nil {
		return mapperError(fnType, err)
	}
	if row == nil {
		return finishMapper(fnType, reflect.Zero(resultType), nil)
	}
	return finishMapper(fnType, coerce(row, resultType), nil)
}

func coerce(v any, target reflect.Type) reflect.Value {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Zero(target)
	}
	if rv.Type().AssignableTo(target) {
		return rv
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target)
	}
	return reflect.Zero(target)
}

// mapperUpdateResult shapes an insert/update/delete's affected-row count
// to fnType's declared first return value, when present (int64, int, or
// omitted entirely -- error-only signatures are common for fire-and-forget
// writes).
func mapperUpdateResult(fnType reflect.Type, rows int64, err error) []reflect.Value {
	if fnType.NumOut() == 0 {
		return nil
	}
	if fnType.NumOut() == 1 && fnType.Out(0).Implements(errType) {
		return finishMapperErrorOnly(fnType, err)
	}
	countType := fnType.Out(0)
	var count reflect.Value
	switch countType.Kind() {
	case reflect.Int64:
		count = reflect.ValueOf(rows)
	case reflect.Int, reflect.Int32:
		count = reflect.ValueOf(rows).Convert(countType)
	default:
		count = reflect.Zero(countType)
	}
	return finishMapper(fnType, count, err)
}

// finishMapper builds the []reflect.Value for a two-output (value, error)
// mapper method. A one-output (value-only) method signature has nowhere to
// carry err, so it is logged and dropped -- callers wanting failures
// surfaced should declare a trailing error return.
func finishMapper(fnType reflect.Type, value reflect.Value, err error) []reflect.Value {
	if fnType.NumOut() == 1 {
		if err != nil {
			XLog.Warn("sqlbatis: mapper call failed with no error return to report it: %v", err)
		}
		return []reflect.Value{value}
	}
	return []reflect.Value{value, errValue(fnType.Out(1), err)}
}

func finishMapperErrorOnly(fnType reflect.Type, err error) []reflect.Value {
	return []reflect.Value{errValue(fnType.Out(0), err)}
}

func mapperError(fnType reflect.Type, err error) []reflect.Value {
	out := make([]reflect.Value, fnType.NumOut())
	for i := 0; i < fnType.NumOut()-1; i++ {
		out[i] = reflect.Zero(fnType.Out(i))
	}
	if fnType.NumOut() > 0 {
		last := fnType.NumOut() - 1
		if fnType.Out(last).Implements(errType) {
			out[last] = errValue(fnType.Out(last), err)
		} else {
			out[last] = reflect.Zero(fnType.Out(last))
		}
	}
	return out
}

func errValue(errOut reflect.Type, err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errOut)
	}
	v := reflect.New(errOut).Elem()
	v.Set(reflect.ValueOf(err))
	return v
}

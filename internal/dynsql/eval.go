// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EvalError reports a failure compiling or running a binding expression
// (an `<if test=...>`, `<bind value=...>`, or `${...}` token).
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string { return fmt.Sprintf("dynsql: expression %q: %v", e.Expr, e.Err) }

func (e *EvalError) Unwrap() error { return e.Err }

// compileCache memoizes compiled programs per expression source, since the
// same `test`/`value`/`${...}` string is re-evaluated on every invocation
// of a dynamic statement. Parallel sessions render dynamic SQL concurrently
// (spec.md §5 "internally synchronized" shared caches), so the map is
// guarded the same way internal/types.Registry and internal/reflectx guard
// their own process-wide caches.
var compileCache = newProgramCache()

type programCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newProgramCache() *programCache { return &programCache{programs: map[string]*vm.Program{}} }

func (p *programCache) compile(source string) (*vm.Program, error) {
	p.mu.RLock()
	prog, ok := p.programs[source]
	p.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.programs[source] = prog
	p.mu.Unlock()
	return prog, nil
}

// eval compiles (or reuses the compiled form of) source and runs it against
// ctx's bindings.
func eval(source string, ctx *Context) (any, error) {
	prog, err := compileCache.compile(source)
	if err != nil {
		return nil, &EvalError{Expr: source, Err: err}
	}
	out, err := expr.Run(prog, ctx.env())
	if err != nil {
		return nil, &EvalError{Expr: source, Err: err}
	}
	return out, nil
}

// evalBool runs source against ctx and reports its truthiness the way the
// spec's `<if test=...>` does: nil, false, zero numbers, empty strings and
// collections, and nil pointers are falsy; everything else (including
// non-empty strings, non-zero numbers, non-empty collections, and any struct
// value) is truthy.
func evalBool(source string, ctx *Context) (bool, error) {
	v, err := eval(source, ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	default:
		return true
	}
}

// stringify renders v for substitution into ${...} token output:
// nil becomes "" (MyBatis issue #274: empty, not the literal "null").
func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

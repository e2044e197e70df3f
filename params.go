// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"fmt"
	"reflect"
)

// namedParam tags an argument to Params with an explicit name, the
// "explicitly named parameters" case of spec.md §6's packing rules.
type namedParam struct {
	name  string
	value any
}

// Named wraps value so Params also exposes it under name, in addition to
// its positional param<N> slot.
func Named(name string, value any) any { return namedParam{name: name, value: value} }

// Params packs args per spec.md §6's parameter-packing rules:
//   - zero args -> nil
//   - one non-collection, non-named arg -> the value itself
//   - otherwise -> an ordered map {param1, param2, ...} plus any named
//     entries; a lone collection argument is also exposed under
//     "collection" and, for slices, "list", and for arrays, "array".
//
// A lone map[string]any argument (not wrapped in Named) is passed through
// unchanged, since it's already a fully-formed named-parameter map.
func Params(args ...any) any {
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 {
		if _, ok := args[0].(namedParam); !ok {
			if m, ok := args[0].(map[string]any); ok {
				return m
			}
			if !isCollection(args[0]) {
				return args[0]
			}
		}
	}

	out := map[string]any{}
	for i, a := range args {
		name, value := "", a
		if np, ok := a.(namedParam); ok {
			name, value = np.name, np.value
		}
		out[fmt.Sprintf("param%d", i+1)] = value
		if name != "" {
			out[name] = value
		}
	}

	if len(args) == 1 {
		v := out["param1"]
		if v == nil {
			if np, ok := args[0].(namedParam); ok {
				v = np.value
			}
		}
		switch reflect.ValueOf(v).Kind() {
		case reflect.Slice:
			out["collection"] = v
			out["list"] = v
		case reflect.Array:
			out["collection"] = v
			out["array"] = v
		}
	}
	return out
}

// isCollection reports whether v is a slice or array (spec.md §6's
// "collection" parameter category); a bare map is treated as an already
// fully-formed parameter object, not a collection, matching the pass-
// through case above.
func isCollection(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}

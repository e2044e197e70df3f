// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

import "reflect"

// paramEnv exposes parameter's own properties as top-level names, the way
// OGNL evaluates `test`/`value` expressions against the parameter object as
// its root — `test="uid != null"` reads a map key or struct field named
// uid directly, without an "_parameter." prefix.
func paramEnv(parameter any) map[string]any {
	env := map[string]any{}
	if parameter == nil {
		return env
	}
	if m, ok := parameter.(map[string]any); ok {
		for k, v := range m {
			env[k] = v
		}
		return env
	}
	rv := reflect.ValueOf(parameter)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return env
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return env
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		v := rv.Field(i).Interface()
		env[f.Name] = v
		env[lowerFirst(f.Name)] = v
	}
	return env
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// env merges ctx's declared bindings (bind/foreach vars, plus _parameter
// and _databaseId) over the parameter's own properties, so an explicit
// binding shadows a same-named parameter field.
func (c *Context) env() map[string]any {
	out := paramEnv(c.Parameter())
	for k, v := range c.bindings {
		out[k] = v
	}
	return out
}

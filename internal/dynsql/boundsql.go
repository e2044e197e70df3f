// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

import "strings"

// ParamSpec is one `#{property[,jdbcType=...,typeHandler=...,javaType=...,
// numericScale=...]}` placeholder found during the post-render pass, in the
// order it appeared in the rendered SQL.
type ParamSpec struct {
	Property    string
	JdbcType    string
	TypeHandler string
	JavaType    string
	NumericScale string
}

// BoundSQL is the result of rendering a dynamic SQL tree: final SQL with
// every `#{...}` replaced by a positional placeholder, the ordered
// ParamSpecs those placeholders correspond to, and whatever extra
// variables `<bind>`/`<foreach>` bound along the way (needed to resolve a
// ParamSpec whose Property names a generated binding rather than a field
// of the caller's parameter object).
type BoundSQL struct {
	SQL                  string
	Parameters           []ParamSpec
	AdditionalParameters map[string]any
}

// Render applies root against a fresh context for parameter/databaseID,
// then runs the secondary `#{...}` pass over the accumulated SQL text.
// Panics raised by node evaluation (a malformed `test`/`value`/`${...}`
// expression) are recovered and returned as an error.
func Render(root Node, parameter any, databaseID string) (bsql *BoundSQL, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = &EvalError{Err: nil}
			}
		}
	}()

	ctx := NewContext(parameter, databaseID)
	root.Apply(ctx)

	var params []ParamSpec
	finalSQL := replaceTokens(ctx.SQL(), "#{", "}", func(content string) string {
		params = append(params, parseParamSpec(content))
		return "?"
	})

	extra := map[string]any{}
	for k, v := range ctx.Bindings() {
		if k == "_parameter" || k == "_databaseId" {
			continue
		}
		extra[k] = v
	}

	return &BoundSQL{SQL: finalSQL, Parameters: params, AdditionalParameters: extra}, nil
}

// parseParamSpec splits a `#{...}` token's inner content into its property
// path plus any `name=value` attributes, per spec.md §4.9.
func parseParamSpec(content string) ParamSpec {
	parts := strings.Split(content, ",")
	spec := ParamSpec{Property: strings.TrimSpace(parts[0])}
	for _, part := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "jdbcType":
			spec.JdbcType = val
		case "typeHandler":
			spec.TypeHandler = val
		case "javaType":
			spec.JavaType = val
		case "numericScale":
			spec.NumericScale = val
		}
	}
	return spec
}

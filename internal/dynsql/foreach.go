// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

import (
	"fmt"
	"reflect"
	"strings"
)

// ForEach iterates Collection (a slice, array, or map reachable from the
// binding context), rebinding Item (and optionally Index) each pass, and
// renders Open, the iteration bodies joined by Separator, then Close —
// mirroring org.apache.ibatis.scripting.xmltags.ForEachSqlNode. Each
// iteration's `#{item...}`/`#{index...}` tokens are rewritten to a unique
// generated parameter name so the later placeholder pass binds the right
// per-iteration value instead of whatever Item last resolved to.
type ForEach struct {
	Contents   Node
	Collection string
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
}

func (n *ForEach) Apply(ctx *Context) bool {
	raw, err := eval(n.Collection, ctx)
	if err != nil {
		panic(err)
	}
	items, keys, ok := iterate(raw)
	if !ok || len(items) == 0 {
		return false
	}

	scratch := ctx.derive()
	if n.Open != "" {
		scratch.sql.WriteString(n.Open)
	}
	for i, item := range items {
		prefix := fmt.Sprintf("__frch_%s_%d", safeName(n.Item), scratch.NextUnique())
		bodyCtx := scratch.derive()
		if n.Item != "" {
			bodyCtx.bindings[n.Item] = item
			bodyCtx.bindings[prefix] = item
		}
		if n.Index != "" {
			bodyCtx.bindings[n.Index] = keys[i]
			bodyCtx.bindings[prefix+"_idx"] = keys[i]
		}
		bodyCtx.filter = renameFilter(n.Item, n.Index, prefix, scratch.filter)

		n.Contents.Apply(bodyCtx)
		scratch.absorb(bodyCtx)

		if i > 0 && n.Separator != "" {
			scratch.sql.WriteString(n.Separator)
		}
		scratch.sql.WriteString(strings.TrimSpace(bodyCtx.SQL()))
	}
	if n.Close != "" {
		scratch.sql.WriteString(n.Close)
	}
	ctx.absorb(scratch)
	ctx.AppendSQL(strings.TrimSpace(scratch.SQL()))
	return true
}

// renameFilter wraps an existing filter (if any) with one that rewrites
// `#{item...}` and `#{index...}` placeholder tokens to `#{prefix...}`,
// preserving any jdbcType=/typeHandler=/etc. suffix after the property path.
func renameFilter(item, index, prefix string, next func(string) string) func(string) string {
	return func(text string) string {
		rewritten := replaceTokens(text, "#{", "}", func(content string) string {
			name, rest := splitPropertyExpr(content)
			switch {
			case item != "" && (name == item || strings.HasPrefix(name, item+".") || strings.HasPrefix(name, item+"[")):
				return "#{" + prefix + strings.TrimPrefix(name, item) + rest + "}"
			case index != "" && (name == index || strings.HasPrefix(name, index+".") || strings.HasPrefix(name, index+"[")):
				return "#{" + prefix + "_idx" + strings.TrimPrefix(name, index) + rest + "}"
			default:
				return "#{" + content + "}"
			}
		})
		if next != nil {
			return next(rewritten)
		}
		return rewritten
	}
}

// splitPropertyExpr splits a #{...} token's content into its leading
// property-path expression and the trailing ",jdbcType=..." etc. suffix
// (including the separating comma).
func splitPropertyExpr(content string) (name, rest string) {
	if idx := strings.Index(content, ","); idx >= 0 {
		return content[:idx], content[idx:]
	}
	return content, ""
}

func safeName(s string) string {
	if s == "" {
		return "item"
	}
	return s
}

// iterate normalizes raw (a slice, array, or map) into a parallel list of
// values and their "index" (slice index, or map key for a map collection).
func iterate(raw any) (values []any, keys []any, ok bool) {
	if raw == nil {
		return nil, nil, false
	}
	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		values = make([]any, n)
		keys = make([]any, n)
		for i := 0; i < n; i++ {
			values[i] = rv.Index(i).Interface()
			keys[i] = i
		}
		return values, keys, true
	case reflect.Map:
		mkeys := rv.MapKeys()
		values = make([]any, len(mkeys))
		keys = make([]any, len(mkeys))
		for i, k := range mkeys {
			values[i] = rv.MapIndex(k).Interface()
			keys[i] = k.Interface()
		}
		return values, keys, true
	default:
		return nil, nil, false
	}
}

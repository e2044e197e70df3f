// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dynsql implements the dynamic SQL tree (C9): a tree of fragment
// nodes that, rendered against a parameter binding context, produces a SQL
// string plus an ordered list of bound-parameter expressions.
package dynsql

import "strings"

// Context accumulates rendered SQL text and holds the binding environment a
// node's expressions are evaluated against, mirroring
// org.apache.ibatis.scripting.xmltags.DynamicContext.
type Context struct {
	sql       strings.Builder
	bindings  map[string]any
	uniqueSeq int
	// filter, when set, rewrites text immediately before it's appended to
	// sql. ForEach installs one to rename #{item...}/#{index...} tokens to
	// unique per-iteration parameter names (see foreach.go).
	filter func(string) string
}

// NewContext builds a rendering context for one statement invocation.
// parameter is bound under the reserved "_parameter" key; databaseID under
// "_databaseId".
func NewContext(parameter any, databaseID string) *Context {
	c := &Context{bindings: map[string]any{}}
	c.bindings["_parameter"] = parameter
	c.bindings["_databaseId"] = databaseID
	return c
}

// AppendSQL appends text to the accumulated SQL, separated by a single
// space from whatever precedes it (matching MyBatis's DynamicContext,
// which always inserts a space between appended fragments).
func (c *Context) AppendSQL(text string) {
	if text == "" {
		return
	}
	if c.filter != nil {
		text = c.filter(text)
	}
	if c.sql.Len() > 0 {
		c.sql.WriteByte(' ')
	}
	c.sql.WriteString(text)
}

// derive spawns a scratch Context sharing bindings and filter with c and
// starting from c's unique-name counter (absorb copies it back), for nodes (Trim, ForEach) that render into a separate
// buffer before deciding how to fold the result back into c.
func (c *Context) derive() *Context {
	return &Context{bindings: c.bindings, uniqueSeq: c.uniqueSeq, filter: c.filter}
}

// absorb pulls the unique-name counter back from a Context built via
// derive, so unique names minted inside the scratch render stay globally
// unique.
func (c *Context) absorb(scratch *Context) {
	c.uniqueSeq = scratch.uniqueSeq
}

// SQL returns the accumulated SQL text rendered so far.
func (c *Context) SQL() string { return c.sql.String() }

// Bindings exposes the mutable binding map that expression evaluation and
// VarDecl/ForEach nodes read from and write into.
func (c *Context) Bindings() map[string]any { return c.bindings }

// Bind sets name to value in the binding environment.
func (c *Context) Bind(name string, value any) { c.bindings[name] = value }

// Parameter returns the root parameter object bound under "_parameter".
func (c *Context) Parameter() any { return c.bindings["_parameter"] }

// NextUnique returns a monotonically increasing counter value, used by
// ForEach to mint collision-free per-iteration binding names.
func (c *Context) NextUnique() int {
	c.uniqueSeq++
	return c.uniqueSeq
}

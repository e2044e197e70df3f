// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

// Node is one fragment of a dynamic SQL tree. Apply renders the node
// against ctx, appending SQL text and possibly mutating bindings, and
// reports whether it contributed any non-whitespace text — matching
// spec.md §4.9's "apply(context) -> bool" contract (SqlNode.apply in the
// teacher's analog).
type Node interface {
	Apply(ctx *Context) bool
}

// Static renders fixed SQL text verbatim, with no expression evaluation.
type Static struct {
	Text string
}

func (n *Static) Apply(ctx *Context) bool {
	ctx.AppendSQL(n.Text)
	return true
}

// TextWithTokens renders text that may contain `${...}` tokens: each
// token's content is evaluated as an expression against ctx's bindings and
// the stringified result substituted in verbatim (no parameter
// placeholder, so callers must trust this text — it is not escaped).
type TextWithTokens struct {
	Text string
}

// IsDynamic reports whether Text contains at least one `${...}` token.
func (n *TextWithTokens) IsDynamic() bool { return containsToken(n.Text, "${", "}") }

func (n *TextWithTokens) Apply(ctx *Context) bool {
	rendered := replaceTokens(n.Text, "${", "}", func(content string) string {
		v, err := eval(content, ctx)
		if err != nil {
			panic(err)
		}
		return stringify(v)
	})
	ctx.AppendSQL(rendered)
	return true
}

// Mixed renders an ordered sequence of child nodes.
type Mixed struct {
	Children []Node
}

func (n *Mixed) Apply(ctx *Context) bool {
	applied := false
	for _, child := range n.Children {
		if child.Apply(ctx) {
			applied = true
		}
	}
	return applied
}

// If applies Contents only when Test evaluates truthy against ctx.
type If struct {
	Test     string
	Contents Node
}

func (n *If) Apply(ctx *Context) bool {
	ok, err := evalBool(n.Test, ctx)
	if err != nil {
		panic(err)
	}
	if !ok {
		return false
	}
	return n.Contents.Apply(ctx)
}

// Choose applies the first truthy When, or Otherwise if none matched and
// Otherwise is non-nil.
type Choose struct {
	Whens     []*If
	Otherwise Node
}

func (n *Choose) Apply(ctx *Context) bool {
	for _, when := range n.Whens {
		ok, err := evalBool(when.Test, ctx)
		if err != nil {
			panic(err)
		}
		if ok {
			return when.Contents.Apply(ctx)
		}
	}
	if n.Otherwise != nil {
		return n.Otherwise.Apply(ctx)
	}
	return false
}

// VarDecl evaluates Expression and binds the result under Name — the
// `<bind>` tag.
type VarDecl struct {
	Name       string
	Expression string
}

func (n *VarDecl) Apply(ctx *Context) bool {
	v, err := eval(n.Expression, ctx)
	if err != nil {
		panic(err)
	}
	ctx.Bind(n.Name, v)
	return false
}

// Literal binds a constant value under Name without evaluating an
// expression — used by `<include>` property substitution, where the value
// is the `<property value="...">` text itself, not an expression to run.
type Literal struct {
	Name  string
	Value any
}

func (n *Literal) Apply(ctx *Context) bool {
	ctx.Bind(n.Name, n.Value)
	return false
}

// IsStatic reports whether n's rendered SQL text can never vary across
// invocations: no conditional, loop, or ${...} token anywhere in the tree.
// MappedStatement uses this to decide whether its BoundSQL can be cached
// after the first render (spec.md §4.9 "raw statements cache the post-pass
// bound SQL").
func IsStatic(n Node) bool {
	switch t := n.(type) {
	case *Static:
		return true
	case *TextWithTokens:
		return !t.IsDynamic()
	case *Mixed:
		for _, c := range t.Children {
			if !IsStatic(c) {
				return false
			}
		}
		return true
	case *Trim:
		return IsStatic(t.Contents)
	default:
		return false
	}
}

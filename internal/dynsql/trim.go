// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

import "strings"

// Trim renders Contents into a scratch buffer, strips any leading token in
// PrefixOverrides and any trailing token in SuffixOverrides, then wraps
// what remains with Prefix/Suffix — but only if the trimmed body has any
// non-whitespace content, matching
// org.apache.ibatis.scripting.xmltags.TrimSqlNode.
type Trim struct {
	Contents        Node
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
}

// Where is Trim with Prefix "WHERE" and PrefixOverrides "AND"/"OR" followed
// by a space, a newline, or a tab.
func Where(contents Node) *Trim {
	return &Trim{Contents: contents, Prefix: "WHERE", PrefixOverrides: []string{"AND ", "OR ", "AND\n", "OR\n", "AND\t", "OR\t"}}
}

// Set is Trim with Prefix "SET" and SuffixOverrides {","}.
func Set(contents Node) *Trim {
	return &Trim{Contents: contents, Prefix: "SET", SuffixOverrides: []string{","}}
}

func (n *Trim) Apply(ctx *Context) bool {
	scratch := ctx.derive()
	applied := n.Contents.Apply(scratch)
	ctx.absorb(scratch)
	body := scratch.SQL()

	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	trimmed = trimLeadingAny(trimmed, n.PrefixOverrides)
	trimmed = trimTrailingAny(trimmed, n.SuffixOverrides)
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return applied
	}

	var out strings.Builder
	if n.Prefix != "" {
		out.WriteString(n.Prefix)
		out.WriteByte(' ')
	}
	out.WriteString(trimmed)
	if n.Suffix != "" {
		out.WriteByte(' ')
		out.WriteString(n.Suffix)
	}
	ctx.AppendSQL(out.String())
	return true
}

// trimLeadingAny removes the first matching override token (case-
// insensitive) from the start of s, at most once. Each override is matched
// literally, including its own trailing separator character (a space, "\n",
// or "\t"), rather than collapsed to a single space, so a "AND\n" override
// actually strips a body beginning "AND\n...".
func trimLeadingAny(s string, overrides []string) string {
	upper := strings.ToUpper(s)
	for _, tok := range overrides {
		up := strings.ToUpper(tok)
		if strings.HasPrefix(upper, up) {
			return s[len(tok):]
		}
	}
	return s
}

// trimTrailingAny removes the last matching override token (case-
// insensitive) from the end of s, at most once.
func trimTrailingAny(s string, overrides []string) string {
	upper := strings.ToUpper(s)
	for _, tok := range overrides {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if strings.HasSuffix(upper, tok) {
			return s[:len(s)-len(tok)]
		}
	}
	return s
}

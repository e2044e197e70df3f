// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dynsql

import "strings"

// replaceTokens scans text for open...close delimited regions (e.g. "${"
// and "}", or "#{" and "}"), replacing each region's inner content with
// whatever handle returns. A backslash immediately before open escapes it,
// copying open through literally instead of starting a token.
func replaceTokens(text, open, close string, handle func(content string) string) string {
	if !strings.Contains(text, open) {
		return text
	}
	var out strings.Builder
	i := 0
	for {
		start := strings.Index(text[i:], open)
		if start < 0 {
			out.WriteString(text[i:])
			break
		}
		start += i
		if start > 0 && text[start-1] == '\\' {
			out.WriteString(text[i : start-1])
			out.WriteString(open)
			i = start + len(open)
			continue
		}
		out.WriteString(text[i:start])
		contentStart := start + len(open)
		end := strings.Index(text[contentStart:], close)
		if end < 0 {
			out.WriteString(text[start:])
			i = len(text)
			break
		}
		end += contentStart
		out.WriteString(handle(text[contentStart:end]))
		i = end + len(close)
	}
	return out.String()
}

// containsToken reports whether text has at least one open...close region,
// ignoring escaped occurrences of open.
func containsToken(text, open, close string) bool {
	found := false
	replaceTokens(text, open, close, func(string) string {
		found = true
		return ""
	})
	return found
}

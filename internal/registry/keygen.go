// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

// KeyGenerator describes how a MappedStatement obtains generated keys,
// supplementing spec.md §3's "explicit select-key" strategy with the exact
// before/after ordering MyBatis's SelectKeyGenerator pins (SPEC_FULL.md
// §12): order BEFORE runs the companion statement and copies its result
// into the parameter object ahead of the main statement; order AFTER runs
// it afterward.
type KeyGenerator struct {
	StatementID string // the companion <selectKey> statement's id
	Order       KeyGeneratorKind // KeyGenSelectBefore or KeyGenSelectAfter
	KeyProperties []string
	KeyColumns    []string
}

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"sync"
	"time"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
)

// CommandKind is the SQL command kind of a MappedStatement (spec.md §3).
type CommandKind string

const (
	Select CommandKind = "SELECT"
	Insert CommandKind = "INSERT"
	Update CommandKind = "UPDATE"
	Delete CommandKind = "DELETE"
)

// StatementKind selects which C11 Statement Handler variant prepares the
// driver statement (spec.md §3).
type StatementKind string

const (
	StatementPlain    StatementKind = "STATEMENT"
	StatementPrepared StatementKind = "PREPARED"
	StatementCallable StatementKind = "CALLABLE"
)

// KeyGeneratorKind selects how a MappedStatement retrieves generated keys
// (spec.md §3, supplemented by the `<selectKey>` ordering from SPEC_FULL.md
// §12).
type KeyGeneratorKind string

const (
	KeyGenNone          KeyGeneratorKind = "NONE"
	KeyGenDriver        KeyGeneratorKind = "DRIVER"
	KeyGenSelectBefore  KeyGeneratorKind = "SELECT_KEY_BEFORE"
	KeyGenSelectAfter   KeyGeneratorKind = "SELECT_KEY_AFTER"
)

// MappedStatement is the compiled, immutable statement descriptor of
// spec.md §3, uniquely identified by ID ("namespace.id").
type MappedStatement struct {
	ID         string
	Namespace  string
	DatabaseID string

	Command       CommandKind
	StatementKind StatementKind

	SQLSource      dynsql.Node
	Raw            bool // true if SQLSource has no dynamic nodes: BoundSQL is cacheable
	boundSQLOnce   sync.Once
	cachedBoundSQL *dynsql.BoundSQL
	cachedBoundErr error

	ParameterMapID string
	ResultMapIDs   []string
	ResultSets     []string

	FetchSize   int
	Timeout     time.Duration
	FlushCache  bool
	UseCache    bool
	Lazy        bool
	ResultOrdered bool // SPEC_FULL.md §12 supplemented flag

	KeyGeneratorKind KeyGeneratorKind
	KeyProperties    []string
	KeyColumns       []string
}

// CachedBoundSQL returns the memoized BoundSQL for a non-dynamic (Raw)
// statement, building it on first use. Dynamic statements must call
// dynsql.Render fresh per invocation instead (spec.md §4.9 "Raw statements
// cache the post-pass Bound SQL; dynamic statements re-render per
// invocation"). A Raw tree's rendered SQL text and parameter specs never
// depend on the actual parameter value passed in, so it is safe for
// whichever goroutine wins the race to build it once via sync.Once: this
// descriptor is shared across sessions (spec.md §3 "immutable after
// build"), and concurrent first-use from parallel sessions must not race on
// the cachedBoundSQL field.
func (ms *MappedStatement) CachedBoundSQL(parameter any, databaseID string) (*dynsql.BoundSQL, error) {
	if !ms.Raw {
		return dynsql.Render(ms.SQLSource, parameter, databaseID)
	}
	ms.boundSQLOnce.Do(func() {
		ms.cachedBoundSQL, ms.cachedBoundErr = dynsql.Render(ms.SQLSource, parameter, databaseID)
	})
	return ms.cachedBoundSQL, ms.cachedBoundErr
}

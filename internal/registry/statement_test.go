// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbatis/sqlbatis/internal/dynsql"
)

func TestCachedBoundSQLMemoizesRawStatement(t *testing.T) {
	ms := &MappedStatement{
		ID:        "T.select",
		SQLSource: &dynsql.Static{Text: "SELECT 1"},
		Raw:       true,
	}
	first, err := ms.CachedBoundSQL(nil, "")
	require.NoError(t, err)
	second, err := ms.CachedBoundSQL(nil, "")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCachedBoundSQLDynamicStatementDoesNotMemoize(t *testing.T) {
	ms := &MappedStatement{
		ID:        "T.select",
		SQLSource: &dynsql.Static{Text: "SELECT 1"},
		Raw:       false,
	}
	first, err := ms.CachedBoundSQL(nil, "")
	require.NoError(t, err)
	second, err := ms.CachedBoundSQL(nil, "")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

// TestCachedBoundSQLConcurrentFirstUse exercises many goroutines racing to
// build a Raw statement's memoized BoundSQL for the first time, the shape a
// MappedStatement shared across parallel sessions is exposed to (spec.md §3
// "immutable after build", §5). Run with -race, this is the regression
// check for the unsynchronized read-then-write the review flagged.
func TestCachedBoundSQLConcurrentFirstUse(t *testing.T) {
	ms := &MappedStatement{
		ID:        "T.select",
		SQLSource: &dynsql.Static{Text: "SELECT 1"},
		Raw:       true,
	}
	var wg sync.WaitGroup
	results := make([]*dynsql.BoundSQL, 50)
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			bsql, err := ms.CachedBoundSQL(nil, "")
			assert.NoError(t, err)
			results[i] = bsql
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

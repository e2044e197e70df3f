// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stmt

import (
	"database/sql"

	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/registry"
)

// AssignGeneratedKeys retrieves the driver-generated key from res and
// assigns it to the first configured key property on parameter, per
// spec.md §4.11 "retrieve generated keys post-execute and, using
// reflection, assign to the configured key properties of the input
// parameter". Only the single-column, single-row case is meaningful for
// database/sql's sql.Result, since LastInsertId is the only generated-key
// channel it exposes (see DESIGN.md for why this handler doesn't attempt
// to read back a multi-column RETURNING clause itself).
func AssignGeneratedKeys(res sql.Result, ms *registry.MappedStatement, parameter any) {
	if len(ms.KeyProperties) == 0 {
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		return
	}
	reflectx.SetProperty(parameter, ms.KeyProperties[0], id)
}

// AssignGeneratedKeysBatch mirrors AssignGeneratedKeys for the Batch
// executor variant, which executes one statement per row of a batched
// insert and must align each row's generated key back to its own element
// of the input collection rather than a single parameter object.
func AssignGeneratedKeysBatch(res sql.Result, ms *registry.MappedStatement, rowParameter any) {
	AssignGeneratedKeys(res, ms, rowParameter)
}

// paramMapLookup resolves ms's ParameterMapID against the registry, used by
// the callable handler to find OUT/INOUT parameter modes. b.reg is nil for
// handlers built without a registry reference (e.g. unit tests exercising
// bind-only paths), in which case callable statements fall back to treating
// every parameter as IN.
func (b *base) paramMapLookup(id string) (*registry.ParameterMap, bool) {
	if b.reg == nil || id == "" {
		return nil, false
	}
	return b.reg.ParameterMap(id)
}

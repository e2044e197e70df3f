// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"reflect"

	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// ResultMapping is one column<->property binding within a ResultMap
// (spec.md §3).
type ResultMapping struct {
	Property string
	Column   string

	AppType   reflect.Type
	JDBCType  types.JDBCType
	Converter types.Converter // optional override

	NestedSelectID    string // nested query (C12 §4.12.c)
	NestedResultMapID string // nested result map (same cursor)
	ForeignColumn     string // nested result mapping keyed across result sets

	Flags []Flag

	NotNullColumns []string
	ColumnPrefix   string
	CompositeCols  map[string]string // nested-select param name -> outer column
	Lazy           bool
}

// Flag marks a ResultMapping as part of the constructor arg list and/or the
// identity (ID) column set.
type Flag string

const (
	FlagID          Flag = "ID"
	FlagConstructor Flag = "CONSTRUCTOR"
)

func (rm ResultMapping) Has(f Flag) bool {
	for _, g := range rm.Flags {
		if g == f {
			return true
		}
	}
	return false
}

// Discriminator is a column-driven subtype selector: Column's decoded value
// picks a case in Cases, falling through to the parent map if no case
// matches.
type Discriminator struct {
	Column   string
	AppType  reflect.Type
	JDBCType types.JDBCType
	Cases    map[string]string // decoded value (stringified) -> resultMap id
}

// ResultMap is the compiled result-shape descriptor of spec.md §3.
type ResultMap struct {
	ID       string
	Type     reflect.Type
	Extends  string
	Mappings []ResultMapping
	Discriminator *Discriminator
	AutoMapping   *bool // nil = inherit configuration default

	resolved bool
}

// IDMappings returns the subset of Mappings flagged ID, used to build the
// row-key identity for nested result-map aggregation (spec.md §4.12).
func (rm *ResultMap) IDMappings() []ResultMapping {
	var out []ResultMapping
	for _, m := range rm.Mappings {
		if m.Has(FlagID) {
			out = append(out, m)
		}
	}
	return out
}

// ConstructorMappings returns the subset of Mappings flagged CONSTRUCTOR,
// in declaration order, used to build the target object positionally.
func (rm *ResultMap) ConstructorMappings() []ResultMapping {
	var out []ResultMapping
	for _, m := range rm.Mappings {
		if m.Has(FlagConstructor) {
			out = append(out, m)
		}
	}
	return out
}

// MappedColumns returns the set of column names (case-insensitive) this
// result map explicitly binds, used to partition mapped vs. unmapped
// columns during result-set handling (spec.md §4.12 step 2).
func (rm *ResultMap) MappedColumns() map[string]struct{} {
	out := map[string]struct{}{}
	for _, m := range rm.Mappings {
		if m.Column != "" {
			out[reflectx.Canonical(m.Column)] = struct{}{}
		}
	}
	return out
}

// inherit copies parent's mappings and discriminator into rm, prepending
// parent's mappings before rm's own (spec.md §3 "after registry build,
// every extends is resolved").
func (rm *ResultMap) inherit(parent *ResultMap) {
	if rm.resolved {
		return
	}
	merged := make([]ResultMapping, 0, len(parent.Mappings)+len(rm.Mappings))
	merged = append(merged, parent.Mappings...)
	merged = append(merged, rm.Mappings...)
	rm.Mappings = merged
	if rm.Discriminator == nil {
		rm.Discriminator = parent.Discriminator
	}
	if rm.AutoMapping == nil {
		rm.AutoMapping = parent.AutoMapping
	}
	rm.resolved = true
}

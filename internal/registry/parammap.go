// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"reflect"

	"github.com/sqlbatis/sqlbatis/internal/types"
)

// ParameterMode is the IN/OUT/INOUT direction of a ParameterMapping
// (spec.md §3), relevant only to callable statements (C11 Callable).
type ParameterMode string

const (
	ModeIn    ParameterMode = "IN"
	ModeOut   ParameterMode = "OUT"
	ModeInOut ParameterMode = "INOUT"
)

// ParameterMapping is one bound parameter's declared shape (spec.md §3).
type ParameterMapping struct {
	Property      string
	AppType       reflect.Type
	JDBCType      types.JDBCType
	Mode          ParameterMode
	Converter     types.Converter
	NumericScale  int
	OutResultMapID string // bound result map for an OUT cursor parameter
}

// ParameterMap is a reusable, named set of ParameterMappings (spec.md §3),
// the legacy `<parameterMap>` element (most statements instead declare
// parameter shape inline via `#{...}` tokens, handled directly by C9/C11).
type ParameterMap struct {
	ID       string
	Type     reflect.Type
	Mappings []ParameterMapping
}

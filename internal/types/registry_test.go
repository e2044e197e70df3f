// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package types

import (
	"database/sql/driver"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unregisteredType struct{ V int }

func TestResolveClimbsPointerIndirection(t *testing.T) {
	r := NewRegistry()
	conv := stubConverter{}
	r.Register(reflect.TypeOf(""), Varchar, conv)

	ptrType := reflect.TypeOf(new(string))
	assert.Equal(t, conv, r.Resolve(ptrType, Varchar))
}

func TestResolveMemoizesMissUnderBothPointerAndElemType(t *testing.T) {
	r := NewRegistry()
	typ := reflect.TypeOf(unregisteredType{})

	first := r.Resolve(reflect.TypeOf(&unregisteredType{}), Unspecified)
	_, unknownAfterMiss := first.(unknownConverter)
	require.True(t, unknownAfterMiss)

	// a later Register for the same type must still be picked up: the
	// memoized miss table is the live table, not a frozen snapshot.
	conv := stubConverter{}
	r.Register(typ, Varchar, conv)
	assert.Equal(t, conv, r.Resolve(typ, Varchar))
	assert.Equal(t, conv, r.Resolve(reflect.TypeOf(&unregisteredType{}), Varchar))
}

func TestResolveUnsupportedAlwaysReturnsUnknown(t *testing.T) {
	r := NewRegistry()
	conv := stubConverter{}
	r.Register(reflect.TypeOf(""), Unsupported, conv)
	_, ok := r.Resolve(reflect.TypeOf(""), Unsupported).(unknownConverter)
	assert.True(t, ok)
}

type stubConverter struct{}

func (stubConverter) Bind(v any, _ JDBCType) (driver.Value, error) { return v, nil }
func (stubConverter) Decode(raw any) (any, error)                  { return raw, nil }

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsZeroArgs(t *testing.T) {
	assert.Nil(t, Params())
}

func TestParamsSingleScalarPassesThrough(t *testing.T) {
	assert.Equal(t, 42, Params(42))
	assert.Equal(t, "hello", Params("hello"))
}

func TestParamsSingleMapPassesThrough(t *testing.T) {
	m := map[string]any{"id": 1}
	got := Params(m)
	assert.Equal(t, m, got)
	_, ok := got.(map[string]any)
	assert.True(t, ok)
}

func TestParamsSingleSliceExposesCollectionAliases(t *testing.T) {
	ids := []int{1, 2, 3}
	got := Params(ids).(map[string]any)
	assert.Equal(t, ids, got["param1"])
	assert.Equal(t, ids, got["collection"])
	assert.Equal(t, ids, got["list"])
	_, hasArray := got["array"]
	assert.False(t, hasArray)
}

func TestParamsSingleArrayExposesCollectionAliases(t *testing.T) {
	ids := [3]int{1, 2, 3}
	got := Params(ids).(map[string]any)
	assert.Equal(t, ids, got["param1"])
	assert.Equal(t, ids, got["collection"])
	assert.Equal(t, ids, got["array"])
	_, hasList := got["list"]
	assert.False(t, hasList)
}

func TestParamsMultipleArgsPackPositionally(t *testing.T) {
	got := Params("bob", 30).(map[string]any)
	assert.Equal(t, "bob", got["param1"])
	assert.Equal(t, 30, got["param2"])
}

func TestParamsNamedArgs(t *testing.T) {
	got := Params(Named("name", "bob"), Named("age", 30)).(map[string]any)
	assert.Equal(t, "bob", got["name"])
	assert.Equal(t, 30, got["age"])
	assert.Equal(t, "bob", got["param1"])
	assert.Equal(t, 30, got["param2"])
}

func TestParamsSingleNamedArgIsNotPassthrough(t *testing.T) {
	got := Params(Named("id", 7)).(map[string]any)
	assert.Equal(t, 7, got["id"])
	assert.Equal(t, 7, got["param1"])
}

func TestParamsMixedNamedAndPositional(t *testing.T) {
	got := Params(Named("id", 7), "extra").(map[string]any)
	assert.Equal(t, 7, got["id"])
	assert.Equal(t, 7, got["param1"])
	assert.Equal(t, "extra", got["param2"])
}

func TestIsCollection(t *testing.T) {
	assert.True(t, isCollection([]int{1}))
	assert.True(t, isCollection([2]int{1, 2}))
	assert.False(t, isCollection(map[string]any{}))
	assert.False(t, isCollection("string"))
	assert.False(t, isCollection(nil))
}

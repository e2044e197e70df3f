// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reflectx

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleUser struct {
	ID       int64
	UserName string
}

func TestCanonicalIsCaseInsensitiveOnly(t *testing.T) {
	assert.Equal(t, Canonical("UserName"), Canonical("USERNAME"))
	assert.NotEqual(t, Canonical("user_name"), Canonical("UserName"))
}

func TestFoldedCanonicalStripsUnderscores(t *testing.T) {
	assert.Equal(t, FoldedCanonical("user_name"), FoldedCanonical("UserName"))
	assert.Equal(t, FoldedCanonical("USER_NAME"), FoldedCanonical("UserName"))
}

func TestWritableDoesNotFoldUnderscores(t *testing.T) {
	meta := For(reflect.TypeOf(sampleUser{}))
	assert.True(t, meta.Writable("UserName"))
	assert.True(t, meta.Writable("username"))
	assert.False(t, meta.Writable("user_name"))
}

func TestResolveFoldedMatchesUnderscoredColumn(t *testing.T) {
	meta := For(reflect.TypeOf(sampleUser{}))
	name, typ, ok := meta.ResolveFolded("user_name")
	assert.True(t, ok)
	assert.Equal(t, "UserName", name)
	assert.Equal(t, reflect.TypeOf(""), typ)

	_, _, ok = meta.ResolveFolded("no_such_column")
	assert.False(t, ok)
}

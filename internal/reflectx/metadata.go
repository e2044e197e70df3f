// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reflectx implements the reflection metadata cache (C2) and the
// dotted/indexed property path resolver (C3) that the executor and result
// set handler use to read and write application objects without per-call
// reflection cost.
package reflectx

import (
	"reflect"
	"strings"
	"sync"
)

// Metadata is the cached, per-struct-type descriptor: which field names are
// readable/writable and how to get/set them by name. Go has no getter/setter
// methods to disambiguate the way the original Java reflector does, so this
// descriptor is built from exported struct fields plus an optional `db`
// tag, matched case-insensitively by default. A second, folded
// index additionally treats underscores as absent, backing the
// mapUnderscoreToCamelCase-enabled comparison via ResolveFolded (only the
// Result Set Handler's auto-mapping path consults it; every other lookup
// uses the plain, unfolded index).
type Metadata struct {
	typ        reflect.Type
	fields     map[string]int    // canonical (lower) name -> field index
	folded     map[string]string // canonical, underscore-stripped name -> canonical (unfolded) name
	fieldNames map[string]string // canonical name -> declared Go field name
	fieldTypes map[string]reflect.Type
	order      []string
}

var (
	cacheMu sync.RWMutex
	cache   = map[reflect.Type]*Metadata{}
)

// For returns the cached Metadata for typ (which must be a struct or a
// pointer to struct), building it on first use. Concurrent callers share one
// descriptor per type, mirroring the teacher's process-wide model-info cache
// (XOrm.getModelMeta).
func For(typ reflect.Type) *Metadata {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	cacheMu.RLock()
	m, ok := cache[typ]
	cacheMu.RUnlock()
	if ok {
		return m
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if m, ok := cache[typ]; ok {
		return m
	}
	m = build(typ)
	cache[typ] = m
	return m
}

func build(typ reflect.Type) *Metadata {
	m := &Metadata{
		typ:        typ,
		fields:     map[string]int{},
		folded:     map[string]string{},
		fieldNames: map[string]string{},
		fieldTypes: map[string]reflect.Type{},
	}
	if typ.Kind() != reflect.Struct {
		return m
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("db"); tag != "" && tag != "-" {
			name = strings.Split(tag, ",")[0]
		}
		canon := Canonical(name)
		m.fields[canon] = i
		m.folded[FoldedCanonical(name)] = canon
		m.fieldNames[canon] = f.Name
		m.fieldTypes[canon] = f.Type
		m.order = append(m.order, canon)
	}
	return m
}

// Canonical normalizes a column or property name for case-insensitive
// comparison only: "UserName", "username" and "USERNAME" collide, but
// "user_name" does not. This is the default matching rule everywhere one
// SQL-side identifier is compared against another (a raw driver column
// label against an explicit <result column> attribute, a discriminator or
// identity column) and, absent mapUnderscoreToCamelCase, against a
// destination property name.
func Canonical(name string) string {
	return strings.ToLower(name)
}

// FoldedCanonical additionally strips underscores, so "user_name",
// "UserName" and "USER_NAME" all collide. Only Metadata.ResolveFolded
// consults this, backing mapUnderscoreToCamelCase's auto-mapping rule from
// SPEC_FULL.md §12 when the setting is enabled.
func FoldedCanonical(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// Readable reports whether property is a readable field on this type.
func (m *Metadata) Readable(property string) bool {
	_, ok := m.fields[Canonical(property)]
	return ok
}

// Writable reports whether property is a settable field on this type.
func (m *Metadata) Writable(property string) bool {
	_, ok := m.fields[Canonical(property)]
	return ok
}

// FieldType returns the declared Go type of property, used by auto-mapping
// to pick a converter for an unmapped column before decoding it.
func (m *Metadata) FieldType(property string) (reflect.Type, bool) {
	t, ok := m.fieldTypes[Canonical(property)]
	return t, ok
}

// ResolveFolded looks up column using underscore-folded matching (the
// mapUnderscoreToCamelCase-enabled comparison, e.g. "user_name" against
// property "UserName") and returns the destination's declared Go field name
// and type. Callers write through the returned name (e.g. SetProperty), not
// column, since column may itself still contain underscores.
func (m *Metadata) ResolveFolded(column string) (name string, typ reflect.Type, ok bool) {
	canon, ok := m.folded[FoldedCanonical(column)]
	if !ok {
		return "", nil, false
	}
	return m.fieldNames[canon], m.fieldTypes[canon], true
}

// FieldNames returns the declared Go field names of the metadata's mapped
// properties, in declaration order.
func (m *Metadata) FieldNames() []string {
	names := make([]string, 0, len(m.order))
	for _, canon := range m.order {
		names = append(names, m.fieldNames[canon])
	}
	return names
}

// Get reads property off obj (a struct or pointer to struct), returning
// (value, true) if the property resolves, else (nil, false).
func (m *Metadata) Get(obj reflect.Value, property string) (any, bool) {
	idx, ok := m.fields[Canonical(property)]
	if !ok {
		return nil, false
	}
	obj = indirect(obj)
	if !obj.IsValid() {
		return nil, false
	}
	fv := obj.Field(idx)
	if !fv.CanInterface() {
		return nil, false
	}
	return fv.Interface(), true
}

// Set writes value into property on obj (must be a pointer to struct),
// converting value to the field's type when assignable or convertible.
func (m *Metadata) Set(obj reflect.Value, property string, value reflect.Value) bool {
	idx, ok := m.fields[Canonical(property)]
	if !ok {
		return false
	}
	obj = indirect(obj)
	if !obj.IsValid() || !obj.CanSet() {
		return false
	}
	fv := obj.Field(idx)
	if !fv.CanSet() {
		return false
	}
	if !value.IsValid() {
		fv.Set(reflect.Zero(fv.Type()))
		return true
	}
	if value.Type().AssignableTo(fv.Type()) {
		fv.Set(value)
		return true
	}
	if value.Type().ConvertibleTo(fv.Type()) {
		fv.Set(value.Convert(fv.Type()))
		return true
	}
	return false
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// New allocates a new *T (returned as reflect.Value to a pointer) for the
// metadata's struct type, the reflective equivalent of the teacher's
// XObject.New[T]() factory.
func New(typ reflect.Type) reflect.Value {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return reflect.New(typ)
}

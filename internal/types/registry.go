// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package types implements the two-axis (application type x driver type)
// converter registry (C1) that drives parameter binding and row-column
// decoding.
package types

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sync"
)

// JDBCType is the opaque driver-type tag a Converter is registered under,
// named after the spec's "driver type" axis (spec.md calls the JDBC-derived
// type tag out of scope to redefine, so this is a small closed enum of the
// tags this package actually discriminates on).
type JDBCType string

const (
	Unspecified JDBCType = ""
	Varchar     JDBCType = "VARCHAR"
	Integer     JDBCType = "INTEGER"
	BigInt      JDBCType = "BIGINT"
	Decimal     JDBCType = "DECIMAL"
	Boolean     JDBCType = "BOOLEAN"
	Timestamp   JDBCType = "TIMESTAMP"
	Blob        JDBCType = "BLOB"
	Unsupported JDBCType = "UNSUPPORTED"
)

// Converter binds a Go value into a driver.Value for parameter binding, and
// decodes a driver-reported column value back into a Go value. Per spec.md
// §4.1, a converter registered under an application type must be able to
// bind any value assignable to that type.
type Converter interface {
	// Bind converts v (assignable to the registered application type) to a
	// driver.Value suitable for positional parameter binding.
	Bind(v any, jdbcType JDBCType) (driver.Value, error)
	// Decode converts a raw column value (as returned by database/sql
	// scanning, already demoted to driver.Value-compatible types) into the
	// application type.
	Decode(raw any) (any, error)
}

// Registry resolves (application type, driver type) -> Converter, climbing
// the type hierarchy on demand and memoizing both hits and misses.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]map[JDBCType]Converter
	unknown Converter
}

// NewRegistry builds a registry pre-seeded with the built-in converters for
// the common scalar Go types.
func NewRegistry() *Registry {
	r := &Registry{byType: map[reflect.Type]map[JDBCType]Converter{}, unknown: unknownConverter{}}
	registerBuiltins(r)
	return r
}

// Register associates conv with appType under the given driver type (pass
// Unspecified to register a type's default converter).
func (r *Registry) Register(appType reflect.Type, jdbcType JDBCType, conv Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byType[appType]
	if !ok {
		m = map[JDBCType]Converter{}
		r.byType[appType] = m
	}
	m[jdbcType] = conv
}

// Resolve looks up the Converter for (appType, jdbcType) per spec.md §4.1:
// explicit driver type, then the Unspecified default, then a unique-handler
// fallback. appType climbs pointer indirection first (a *string parameter
// resolves against string's registrations). An app type with no
// registrations at all gets an Unknown-converter sentinel table, memoized
// under both the original and the pointer-stripped type, so a repeated
// Resolve for it never misses again; a hit is not memoized further.
func (r *Registry) Resolve(appType reflect.Type, jdbcType JDBCType) Converter {
	if appType == nil {
		return r.unknown
	}
	orig := appType
	for appType.Kind() == reflect.Ptr {
		appType = appType.Elem()
	}

	r.mu.RLock()
	m, ok := r.byType[appType]
	r.mu.RUnlock()
	if !ok {
		m = r.memoizeMiss(orig, appType)
	}

	// Unsupported driver type always falls back to the Unknown converter,
	// regardless of app type, per spec.md §4.1.
	if jdbcType == Unsupported {
		return r.unknown
	}
	if c := pick(m, jdbcType); c != nil {
		return c
	}
	return r.unknown
}

// memoizeMiss records the Unknown-converter sentinel table for an app type
// with no registrations, under both orig (the pre-indirection type Resolve
// was called with) and appType (its pointer-stripped form), so the next
// Resolve for either hits the table directly instead of missing again. A
// concurrent Register call between the initial RLock miss and this Lock
// simply wins: the sentinel table is only installed if still absent.
func (r *Registry) memoizeMiss(orig, appType reflect.Type) map[JDBCType]Converter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byType[appType]; ok {
		return m
	}
	m := map[JDBCType]Converter{Unspecified: r.unknown}
	r.byType[appType] = m
	if orig != appType {
		r.byType[orig] = m
	}
	return m
}

// pick implements the explicit -> default -> unique-fallback resolution
// order within one application type's driver-type table.
func pick(m map[JDBCType]Converter, jdbcType JDBCType) Converter {
	if c, ok := m[jdbcType]; ok {
		return c
	}
	if c, ok := m[Unspecified]; ok {
		return c
	}
	var distinct Converter
	count := 0
	for _, c := range m {
		if c != distinct {
			distinct = c
			count++
		}
	}
	if count == 1 {
		return distinct
	}
	return nil
}

type unknownConverter struct{}

func (unknownConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func (unknownConverter) Decode(raw any) (any, error) { return raw, nil }

// ConversionError wraps a bind/decode failure with the semantic kind spec.md
// §7 names CONVERSION_FAILED.
type ConversionError struct {
	Op    string
	Value any
	Cause error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("sqlbatis/types: %s failed for %#v: %v", e.Op, e.Value, e.Cause)
}

func (e *ConversionError) Unwrap() error { return e.Cause }

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resultset implements the Result Set Handler (C12): it walks a
// driver cursor, partitions columns against a ResultMap, and materializes
// application objects via the reflection metadata cache (C2) and the type
// conversion registry (C1), honoring discriminators, nested selects, and
// nested result maps, mirroring
// org.apache.ibatis.executor.resultset.DefaultResultSetHandler.
package resultset

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/sqlbatis/sqlbatis/internal/reflectx"
	"github.com/sqlbatis/sqlbatis/internal/registry"
	"github.com/sqlbatis/sqlbatis/internal/types"
)

// NestedSelector executes another mapped statement for a nested-select
// result mapping (spec.md §4.12.c), parameterized from composite column
// values of the current row. The executor (C13) implements this so nested
// selects go through the same caching/transaction machinery as top-level
// queries.
type NestedSelector interface {
	Select(ctx context.Context, statementID string, parameter any) ([]any, error)
}

// MaterializationError wraps a failure decoding or assembling a result
// row, the RESULT_MATERIALIZATION kind from spec.md §7.
type MaterializationError struct {
	Statement string
	Cause     error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("resultset: statement %q: %v", e.Statement, e.Cause)
}
func (e *MaterializationError) Unwrap() error { return e.Cause }

// AutoMappingBehavior mirrors the configuration-level setting of spec.md §6.
type AutoMappingBehavior string

const (
	AutoMapNone    AutoMappingBehavior = "NONE"
	AutoMapPartial AutoMappingBehavior = "PARTIAL"
	AutoMapFull    AutoMappingBehavior = "FULL"
)

// Config carries the configuration-level defaults the handler falls back
// to when a ResultMap doesn't declare its own auto-mapping flag.
type Config struct {
	Registry              *registry.Registry
	Converters            *types.Registry
	DefaultAutoMapping    AutoMappingBehavior
	UnknownColumnBehavior string // NONE | WARNING | FAILING, per spec.md §6

	// MapUnderscoreToCamelCase enables underscore-folded auto-mapping
	// (SPEC_FULL.md §12): "user_name" matches property "UserName". It
	// governs only the unmapped-column auto-mapping path in autoMap, not
	// explicit <result column> mappings, discriminators, or identity
	// columns, which always match case-insensitively.
	MapUnderscoreToCamelCase bool

	// Logger receives one message per WARNING-level unknown-column skip.
	// Nil disables the warning without changing NONE/FAILING behavior; the
	// root package wires this to XLog.Warn, following the same callback
	// shape internal/pool.Pool.OnEvent uses to keep this package from
	// importing a concrete logging library itself.
	Logger func(string)
}

// UnknownColumnError reports an autoMappingUnknownColumnBehavior=FAILING
// column with no writable destination property.
type UnknownColumnError struct {
	Column   string
	DestType string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("resultset: column %q has no matching property on %s", e.Column, e.DestType)
}

// Handler is the C12 contract: materialize rows from a driver cursor into
// application objects for one MappedStatement's result maps.
type Handler struct {
	cfg    Config
	nested NestedSelector
}

// New builds a Handler that uses nested to service `<association select=...>`
// / `<collection select=...>` nested queries.
func New(cfg Config, nested NestedSelector) *Handler {
	return &Handler{cfg: cfg, nested: nested}
}

// Handle materializes rows into application objects per ms's configured
// result maps. (offset, limit) bound the rows that contribute to the
// returned list; limit < 0 means unbounded, matching spec.md §4.12's
// "Row-range ... honored ... by skipping rows client-side up to offset and
// stopping at limit" (database/sql exposes no server-side cursor scroll).
func (h *Handler) Handle(ctx context.Context, rows *sql.Rows, ms *registry.MappedStatement, offset, limit int) ([]any, error) {
	defer rows.Close()

	if len(ms.ResultMapIDs) == 0 {
		return nil, rows.Err()
	}

	var out []any
	for i, rmID := range ms.ResultMapIDs {
		if i > 0 {
			if !rows.NextResultSet() {
				// Driver reported fewer result sets than the statement
				// expects; spec.md §9 pins the source's behavior here as a
				// silent stop.
				if h.cfg.Logger != nil {
					h.cfg.Logger(fmt.Sprintf("statement %q expected %d result set(s), driver reported fewer", ms.ID, len(ms.ResultMapIDs)))
				}
				break
			}
		}
		rm, ok := h.cfg.Registry.ResultMap(rmID)
		if !ok {
			return nil, &MaterializationError{Statement: ms.ID, Cause: fmt.Errorf("result map %q not found", rmID)}
		}
		objs, err := h.handleOne(ctx, rows, ms.ID, rm, offset, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, objs...)
	}
	return out, rows.Err()
}

func (h *Handler) handleOne(ctx context.Context, rows *sql.Rows, statementID string, rm *registry.ResultMap, offset, limit int) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, &MaterializationError{Statement: statementID, Cause: err}
	}

	identity := map[string]any{}
	var out []any
	skipped := 0

	for rows.Next() {
		if offset > 0 && skipped < offset {
			skipped++
			if err := discardRow(rows, len(cols)); err != nil {
				return nil, &MaterializationError{Statement: statementID, Cause: err}
			}
			continue
		}
		if limit >= 0 && len(out) >= limit {
			break
		}

		raw, err := scanRow(rows, cols)
		if err != nil {
			return nil, &MaterializationError{Statement: statementID, Cause: err}
		}

		obj, isNew, err := h.materialize(ctx, raw, rm, "", identity)
		if err != nil {
			return nil, &MaterializationError{Statement: statementID, Cause: err}
		}
		if obj != nil && isNew {
			out = append(out, obj)
		}
	}
	return out, nil
}

// scanRow pulls one row's columns into a canonical-name-keyed map of raw
// driver values (still driver-native types: []byte, int64, etc.).
func scanRow(rows *sql.Rows, cols []string) (map[string]any, error) {
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[reflectx.Canonical(c)] = dest[i]
	}
	return out, nil
}

func discardRow(rows *sql.Rows, n int) error {
	dest := make([]any, n)
	ptrs := make([]any, n)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	return rows.Scan(ptrs...)
}

// materialize builds or reuses (by row-key identity) the object for one row
// against rm, applying discriminator resolution first. columnPrefix is the
// accumulated `columnPrefix` of any ancestor nested result mapping.
// Returns (nil, false, nil) for a row this result map declines to
// materialize (e.g. every ID column came back NULL, no association data).
func (h *Handler) materialize(ctx context.Context, raw map[string]any, rm *registry.ResultMap, columnPrefix string, identity map[string]any) (any, bool, error) {
	rm = h.resolveDiscriminator(raw, rm, columnPrefix)

	idMappings := rm.IDMappings()
	hasIdentity := len(idMappings) > 0
	var rowKey string
	if hasIdentity {
		parts := make([]string, len(idMappings))
		allNil := true
		for i, m := range idMappings {
			v := raw[reflectx.Canonical(columnPrefix+m.Column)]
			if v != nil {
				allNil = false
			}
			parts[i] = fmt.Sprint(v)
		}
		if allNil {
			// every identity column is NULL: no row to materialize at this
			// level (e.g. a LEFT JOIN with no matching association row).
			return nil, false, nil
		}
		rowKey = rm.ID + "\x00" + columnPrefix + "\x00" + strings.Join(parts, "\x00")
	}

	var obj any
	isNew := true
	if hasIdentity {
		if existing, ok := identity[rowKey]; ok {
			obj, isNew = existing, false
		}
	}

	if obj == nil {
		built, err := h.instantiate(ctx, raw, rm, columnPrefix)
		if err != nil {
			return nil, false, err
		}
		if built == nil {
			return nil, false, nil
		}
		obj = built
		if hasIdentity {
			identity[rowKey] = obj
		}
	}

	if rm.Type != nil {
		for _, m := range rm.Mappings {
			if m.Has(registry.FlagConstructor) {
				continue
			}
			if err := h.applyMapping(ctx, obj, raw, m, columnPrefix, identity); err != nil {
				return nil, false, err
			}
		}
		if h.autoMapEnabled(rm) {
			if err := h.autoMap(obj, raw, rm, columnPrefix); err != nil {
				return nil, false, err
			}
		}
	}

	return obj, isNew, nil
}

// instantiate builds the target object for rm, decoding constructor-flagged
// mappings first and passing them to the zero value's fields directly: Go
// has no overload-resolution ambiguity to referee the way a JVM constructor
// selection would, so "instantiate via the selected constructor" reduces to
// "allocate the zero value, then set its constructor-flagged fields first"
// (spec.md §4.12.b). When rm declares no target type (an unresolved
// `resultType` alias, or the Mybatis `resultType="map"` idiom), rows
// materialize as a plain map[string]any instead, with every column
// contributing a key — equivalent to running full auto-mapping against an
// object with no fixed shape.
func (h *Handler) instantiate(ctx context.Context, raw map[string]any, rm *registry.ResultMap, columnPrefix string) (any, error) {
	if rm.Type == nil {
		out := map[string]any{}
		prefix := reflectx.Canonical(columnPrefix)
		for col, val := range raw {
			if prefix != "" {
				if !strings.HasPrefix(col, prefix) {
					continue
				}
				col = strings.TrimPrefix(col, prefix)
			}
			decoded, err := h.decodeValue(val, nil, types.Unspecified)
			if err != nil {
				return nil, err
			}
			out[col] = decoded
		}
		return out, nil
	}

	ptr := reflectx.New(rm.Type)
	obj := ptr.Interface()
	ctorIdentity := map[string]any{} // constructor args rarely nest a collection, but never write through a nil map
	for _, m := range rm.ConstructorMappings() {
		if err := h.applyMapping(ctx, obj, raw, m, columnPrefix, ctorIdentity); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// applyMapping decodes and sets one ResultMapping's value on obj, or
// recurses into a nested select / nested result map.
func (h *Handler) applyMapping(ctx context.Context, obj any, raw map[string]any, m registry.ResultMapping, columnPrefix string, identity map[string]any) error {
	switch {
	case m.NestedResultMapID != "":
		return h.applyNestedResultMap(ctx, obj, raw, m, columnPrefix, identity)
	case m.NestedSelectID != "":
		return h.applyNestedSelect(ctx, obj, raw, m, columnPrefix)
	default:
		if !notNullSatisfied(raw, m, columnPrefix) {
			return nil
		}
		col := reflectx.Canonical(columnPrefix + m.Column)
		rawVal, ok := raw[col]
		if !ok {
			return nil
		}
		val, err := h.decodeValue(rawVal, m.AppType, m.JDBCType, m.Converter)
		if err != nil {
			return err
		}
		reflectx.SetProperty(obj, m.Property, val)
		return nil
	}
}

func notNullSatisfied(raw map[string]any, m registry.ResultMapping, columnPrefix string) bool {
	for _, c := range m.NotNullColumns {
		v, ok := raw[reflectx.Canonical(columnPrefix+strings.TrimSpace(c))]
		if !ok || v == nil {
			return false
		}
	}
	return true
}

// applyNestedSelect fetches the related rows by invoking another Mapped
// Statement with composite column values as parameters (spec.md §4.12.c),
// then assigns either the whole slice (collection-typed property) or the
// first element (association-typed property), inferred from the
// destination field's own Go type since Go has no separate
// "association"/"collection" declaration the way the markup does.
func (h *Handler) applyNestedSelect(ctx context.Context, obj any, raw map[string]any, m registry.ResultMapping, columnPrefix string) error {
	if h.nested == nil {
		return fmt.Errorf("nested select %q: no NestedSelector configured", m.NestedSelectID)
	}

	var param any
	switch {
	case len(m.CompositeCols) > 0:
		p := map[string]any{}
		for paramName, outerCol := range m.CompositeCols {
			p[paramName] = raw[reflectx.Canonical(columnPrefix+outerCol)]
		}
		param = p
	case m.Column != "":
		v, ok := raw[reflectx.Canonical(columnPrefix+m.Column)]
		if !ok || v == nil {
			return nil // missing link: leave the property unset, per spec.md §4.3.
		}
		decoded, err := h.decodeValue(v, nil, types.Unspecified)
		if err != nil {
			return err
		}
		param = decoded
	}

	results, err := h.nested.Select(ctx, m.NestedSelectID, param)
	if err != nil {
		return err
	}
	return setResultInto(obj, m.Property, results)
}

// applyNestedResultMap materializes the nested object from the same
// cursor's current row and attaches it to obj, appending to a
// collection-valued property across rows that share the parent's row key
// (spec.md §4.12.c "preserving identity by the ID columns and appending to
// collection-valued parents").
func (h *Handler) applyNestedResultMap(ctx context.Context, obj any, raw map[string]any, m registry.ResultMapping, columnPrefix string, identity map[string]any) error {
	nestedRM, ok := h.cfg.Registry.ResultMap(m.NestedResultMapID)
	if !ok {
		return fmt.Errorf("nested result map %q not found", m.NestedResultMapID)
	}
	prefix := columnPrefix + m.ColumnPrefix
	if !notNullSatisfied(raw, m, prefix) {
		return nil
	}

	child, isNewChild, err := h.materialize(ctx, raw, nestedRM, prefix, identity)
	if err != nil || child == nil {
		return err
	}

	rv := indirectStruct(reflect.ValueOf(obj))
	if !rv.IsValid() {
		return nil
	}
	meta := reflectx.For(rv.Type())
	ft, ok := meta.FieldType(m.Property)
	if !ok {
		return nil
	}

	if ft.Kind() == reflect.Slice {
		if !isNewChild {
			return nil // already appended on an earlier row with this row key
		}
		cur, _ := meta.Get(rv, m.Property)
		curSlice := reflect.ValueOf(cur)
		if !curSlice.IsValid() || (curSlice.Kind() == reflect.Slice && curSlice.IsNil()) {
			curSlice = reflect.MakeSlice(ft, 0, 1)
		}
		elem := reflect.ValueOf(child)
		switch {
		case elem.Type().AssignableTo(ft.Elem()):
			curSlice = reflect.Append(curSlice, elem)
		case elem.Type().ConvertibleTo(ft.Elem()):
			curSlice = reflect.Append(curSlice, elem.Convert(ft.Elem()))
		default:
			return nil
		}
		reflectx.SetProperty(obj, m.Property, curSlice.Interface())
		return nil
	}

	reflectx.SetProperty(obj, m.Property, child)
	return nil
}

func indirectStruct(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v
}

// setResultInto assigns a nested-select's results to property on obj,
// taking the whole slice for a slice-typed field or just the first element
// otherwise.
func setResultInto(obj any, property string, results []any) error {
	rv := indirectStruct(reflect.ValueOf(obj))
	if !rv.IsValid() {
		return nil
	}
	meta := reflectx.For(rv.Type())
	ft, ok := meta.FieldType(property)
	if !ok {
		return nil
	}
	if ft.Kind() == reflect.Slice {
		slice := reflect.MakeSlice(ft, 0, len(results))
		for _, r := range results {
			elem := reflect.ValueOf(r)
			switch {
			case elem.Type().AssignableTo(ft.Elem()):
				slice = reflect.Append(slice, elem)
			case elem.Type().ConvertibleTo(ft.Elem()):
				slice = reflect.Append(slice, elem.Convert(ft.Elem()))
			}
		}
		reflectx.SetProperty(obj, property, slice.Interface())
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	reflectx.SetProperty(obj, property, results[0])
	return nil
}

func (h *Handler) resolveDiscriminator(raw map[string]any, rm *registry.ResultMap, columnPrefix string) *registry.ResultMap {
	seen := map[string]bool{}
	for rm.Discriminator != nil && !seen[rm.ID] {
		seen[rm.ID] = true
		col := reflectx.Canonical(columnPrefix + rm.Discriminator.Column)
		val, ok := raw[col]
		if !ok {
			break
		}
		decoded, err := h.decodeValue(val, rm.Discriminator.AppType, rm.Discriminator.JDBCType)
		if err != nil {
			break
		}
		nextID, ok := rm.Discriminator.Cases[fmt.Sprint(decoded)]
		if !ok {
			break
		}
		next, ok := h.cfg.Registry.ResultMap(nextID)
		if !ok {
			break
		}
		rm = next
	}
	return rm
}

func (h *Handler) autoMapEnabled(rm *registry.ResultMap) bool {
	if rm.AutoMapping != nil {
		return *rm.AutoMapping
	}
	return h.cfg.DefaultAutoMapping != AutoMapNone && h.cfg.DefaultAutoMapping != ""
}

// autoMap decodes and sets every column not already covered by rm's
// explicit mappings onto a same-named writable property of obj (spec.md
// §4.12.d), honoring columnPrefix the way an explicit mapping would. The
// column-to-property match is case-insensitive only, unless
// h.cfg.MapUnderscoreToCamelCase is enabled, in which case it additionally
// folds underscores ("user_name" then matches "UserName", per SPEC_FULL.md
// §12). A column with no writable destination property is skipped (NONE),
// reported through h.cfg.Logger (WARNING), or fails the whole row
// (FAILING), per spec.md §6 autoMappingUnknownColumnBehavior.
func (h *Handler) autoMap(obj any, raw map[string]any, rm *registry.ResultMap, columnPrefix string) error {
	mapped := rm.MappedColumns()
	rv := indirectStruct(reflect.ValueOf(obj))
	if !rv.IsValid() {
		return nil
	}
	meta := reflectx.For(rv.Type())
	prefix := reflectx.Canonical(columnPrefix)
	for col, val := range raw {
		bare := col
		if prefix != "" {
			if !strings.HasPrefix(col, prefix) {
				continue
			}
			bare = strings.TrimPrefix(col, prefix)
		}
		if _, isMapped := mapped[bare]; isMapped {
			continue
		}

		property := bare
		var ft reflect.Type
		var known bool
		if h.cfg.MapUnderscoreToCamelCase {
			property, ft, known = meta.ResolveFolded(bare)
		} else {
			ft, known = meta.FieldType(bare)
		}
		if !known {
			switch h.cfg.UnknownColumnBehavior {
			case "FAILING":
				return &UnknownColumnError{Column: col, DestType: rv.Type().String()}
			case "WARNING":
				if h.cfg.Logger != nil {
					h.cfg.Logger(fmt.Sprintf("column %q has no matching property on %s", col, rv.Type()))
				}
			}
			continue
		}
		decoded, err := h.decodeValue(val, ft, types.Unspecified)
		if err != nil {
			continue
		}
		reflectx.SetProperty(obj, property, decoded)
	}
	return nil
}

func (h *Handler) decodeValue(raw any, appType reflect.Type, jdbcType types.JDBCType, override ...types.Converter) (any, error) {
	var conv types.Converter
	if len(override) > 0 && override[0] != nil {
		conv = override[0]
	} else {
		conv = h.cfg.Converters.Resolve(appType, jdbcType)
	}
	decoded, err := conv.Decode(raw)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

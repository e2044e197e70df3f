// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reflectx

import (
	"reflect"
	"strconv"
	"strings"
)

// Segment is one token of a dotted/indexed property path such as
// "order[0].item[key].name": base name, optional bracketed index, and the
// remaining tail of the path.
type Segment struct {
	Name  string // base property name, e.g. "order"
	Index string // bracket contents, e.g. "0" or "key"; empty if none
	Tail  string // remainder of the path after this segment, e.g. "item[key].name"
}

// HasIndex reports whether the segment carried a bracketed index.
func (s Segment) HasIndex() bool { return s.Index != "" }

// IndexedName returns the base name plus its bracketed index, if any.
func (s Segment) IndexedName() string {
	if s.Index == "" {
		return s.Name
	}
	return s.Name + "[" + s.Index + "]"
}

// Tokenize splits a property path into its ordered Segments.
func Tokenize(path string) []Segment {
	var segs []Segment
	for path != "" {
		dot := strings.IndexByte(path, '.')
		var head string
		if dot < 0 {
			head, path = path, ""
		} else {
			head, path = path[:dot], path[dot+1:]
		}
		seg := Segment{Tail: path}
		if open := strings.IndexByte(head, '['); open >= 0 && strings.HasSuffix(head, "]") {
			seg.Name = head[:open]
			seg.Index = head[open+1 : len(head)-1]
		} else {
			seg.Name = head
		}
		segs = append(segs, seg)
	}
	return segs
}

// GetProperty reads a dotted/indexed path off obj, walking intermediate
// links. Returns (nil, false) if any link along the way is missing, exactly
// the "yield none when reading through a missing link" rule from spec.md
// §4.3.
func GetProperty(obj any, path string) (any, bool) {
	cur := reflect.ValueOf(obj)
	segs := Tokenize(path)
	for i, seg := range segs {
		cur = indirect(cur)
		if !cur.IsValid() {
			return nil, false
		}
		val, ok := stepGet(cur, seg)
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return val, true
		}
		cur = reflect.ValueOf(val)
	}
	return nil, false
}

func stepGet(cur reflect.Value, seg Segment) (any, bool) {
	switch cur.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(seg.Name)
		if !key.Type().AssignableTo(cur.Type().Key()) {
			return nil, false
		}
		v := cur.MapIndex(key)
		if !v.IsValid() {
			return nil, false
		}
		base := v.Interface()
		if seg.Index == "" {
			return base, true
		}
		return indexInto(reflect.ValueOf(base), seg.Index)
	case reflect.Struct:
		meta := For(cur.Type())
		base, ok := meta.Get(cur, seg.Name)
		if !ok {
			return nil, false
		}
		if seg.Index == "" {
			return base, true
		}
		return indexInto(reflect.ValueOf(base), seg.Index)
	default:
		return nil, false
	}
}

func indexInto(v reflect.Value, index string) (any, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 || n >= v.Len() {
			return nil, false
		}
		return v.Index(n).Interface(), true
	case reflect.Map:
		key := reflect.ValueOf(index)
		if !key.Type().AssignableTo(v.Type().Key()) {
			return nil, false
		}
		mv := v.MapIndex(key)
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	default:
		return nil, false
	}
}

// SetProperty writes value at a dotted/indexed path rooted at obj (which
// must be a pointer), auto-creating intermediate structs/maps/slice elements
// as needed, per spec.md §4.3 ("auto-create intermediate objects as needed
// when writing").
func SetProperty(obj any, path string, value any) bool {
	segs := Tokenize(path)
	cur := reflect.ValueOf(obj)
	for i, seg := range segs {
		cur = indirect(cur)
		if !cur.IsValid() || cur.Kind() != reflect.Struct {
			return false
		}
		meta := For(cur.Type())
		idx, ok := meta.fields[Canonical(seg.Name)]
		if !ok {
			return false
		}
		field := cur.Field(idx)
		last := i == len(segs)-1

		if seg.Index == "" {
			if last {
				return meta.Set(cur, seg.Name, reflect.ValueOf(value))
			}
			cur = autoVivify(field)
			continue
		}

		// indexed segment: field is a slice/map, Index selects the element.
		container := autoVivify(field)
		container = indirect(container)
		switch container.Kind() {
		case reflect.Slice:
			n, err := strconv.Atoi(seg.Index)
			if err != nil || n < 0 {
				return false
			}
			for container.Len() <= n {
				container.Set(reflect.Append(container, reflect.Zero(container.Type().Elem())))
			}
			field.Set(container)
			elem := container.Index(n)
			if last {
				return setReflect(elem, value)
			}
			cur = elemAddr(elem)
		case reflect.Map:
			if container.IsNil() {
				container.Set(reflect.MakeMap(container.Type()))
				field.Set(container)
			}
			key := reflect.ValueOf(seg.Index)
			if !key.Type().AssignableTo(container.Type().Key()) {
				return false
			}
			if last {
				ev := reflect.New(container.Type().Elem()).Elem()
				if !setReflect(ev, value) {
					return false
				}
				container.SetMapIndex(key, ev)
				return true
			}
			ev := container.MapIndex(key)
			if !ev.IsValid() {
				ev = reflect.New(container.Type().Elem()).Elem()
			}
			holder := reflect.New(container.Type().Elem())
			holder.Elem().Set(ev)
			cur = holder
			defer func(c, k, h reflect.Value) { c.SetMapIndex(k, h.Elem()) }(container, key, holder)
		default:
			return false
		}
	}
	return true
}

func setReflect(dst reflect.Value, value any) bool {
	if !dst.CanSet() {
		return false
	}
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return true
	}
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
		return true
	}
	if v.Type().ConvertibleTo(dst.Type()) {
		dst.Set(v.Convert(dst.Type()))
		return true
	}
	return false
}

// autoVivify returns an addressable value for field, allocating a new
// pointee if field is a nil pointer.
func autoVivify(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() && field.CanSet() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field
	}
	return field
}

func elemAddr(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v
	}
	if v.CanAddr() {
		return v.Addr()
	}
	holder := reflect.New(v.Type())
	holder.Elem().Set(v)
	return holder
}

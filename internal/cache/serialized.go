// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// serializedCache round-trips every value through JSON on both Put and Get
// so the cache never hands out a pointer the caller (or a previous caller)
// can mutate behind its back — the Go analogue of
// org.apache.ibatis.cache.decorators.SerializedCache, which requires cached
// values to implement Serializable and stores a byte copy. Values must be
// JSON-marshalable; anything else fails Put with a clear error surfaced as
// the cache's own CacheError rather than silently caching the live pointer.
type serializedCache struct {
	delegate Cache
}

// CacheError wraps a failure to copy a value through the serialization
// boundary (spec.md §4.6 Serialized).
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache: %s %s: %v", e.Op, e.Key, e.Err) }

func (e *CacheError) Unwrap() error { return e.Err }

// WithSerialized wraps delegate so every stored value is copied via a
// JSON marshal/unmarshal round trip, isolating the cache from later
// mutation of the original value.
func WithSerialized(delegate Cache) Cache {
	return &serializedCache{delegate: delegate}
}

func (c *serializedCache) ID() string { return c.delegate.ID() }

func (c *serializedCache) Put(key string, value any) {
	cp, err := deepCopy(value)
	if err != nil {
		panic(&CacheError{Op: "put", Key: key, Err: err})
	}
	c.delegate.Put(key, cp)
}

func (c *serializedCache) Get(key string) (any, bool) {
	v, ok := c.delegate.Get(key)
	if !ok {
		return nil, false
	}
	cp, err := deepCopy(v)
	if err != nil {
		panic(&CacheError{Op: "get", Key: key, Err: err})
	}
	return cp, true
}

func (c *serializedCache) Remove(key string) { c.delegate.Remove(key) }

func (c *serializedCache) Clear() { c.delegate.Clear() }

func (c *serializedCache) Size() int { return c.delegate.Size() }

// deepCopy clones v by marshaling it to JSON and unmarshaling into a fresh
// instance of v's own concrete type, so the result shares no backing memory
// with v.
func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	typ := reflect.TypeOf(v)
	out := reflect.New(typ)
	if err := json.Unmarshal(buf, out.Interface()); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

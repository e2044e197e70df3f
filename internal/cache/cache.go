// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

// Cache is the interface every layer (C6) implements: a plain hash-map
// store at the core, decorated by eviction, blocking, logging, and
// synchronization layers in that order (spec.md §4.6). A serialization
// layer (WithSerialized) exists, but the mapping compiler does not apply it,
// so a namespace cache hands out the stored values themselves.
type Cache interface {
	ID() string
	Put(key string, value any)
	Get(key string) (any, bool)
	Remove(key string)
	Clear()
	Size() int
}

// store is the innermost plain map-backed Cache, the base every decorator
// wraps.
type store struct {
	id   string
	data map[string]any
}

// NewStore builds the innermost hash-map cache identified by id (typically
// the mapping namespace, per spec.md §4.6 "Cache identity").
func NewStore(id string) Cache {
	return &store{id: id, data: map[string]any{}}
}

func (s *store) ID() string { return s.id }

func (s *store) Put(key string, value any) { s.data[key] = value }

func (s *store) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *store) Remove(key string) { delete(s.data, key) }

func (s *store) Clear() { s.data = map[string]any{} }

func (s *store) Size() int { return len(s.data) }

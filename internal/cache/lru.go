// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// lruCache bounds delegate at capacity using access-order (LRU) eviction,
// per spec.md §4.6. golang-lru/v2 already implements the access-order
// bookkeeping; this decorator just keeps delegate (the wrapped Cache) in
// sync with whatever the LRU index evicts.
type lruCache struct {
	delegate Cache
	index    *lru.Cache[string, struct{}]
}

// WithLRU wraps delegate with an LRU eviction policy bounded at capacity.
// On overflow it evicts the least recently used key from both the index and
// the delegate, matching the teacher's eviction-then-delegate-removal order.
func WithLRU(delegate Cache, capacity int) Cache {
	c := &lruCache{delegate: delegate}
	idx, _ := lru.NewWithEvict[string, struct{}](capacity, func(key string, _ struct{}) {
		delegate.Remove(key)
	})
	c.index = idx
	return c
}

func (c *lruCache) ID() string { return c.delegate.ID() }

func (c *lruCache) Put(key string, value any) {
	c.delegate.Put(key, value)
	c.index.Add(key, struct{}{})
}

func (c *lruCache) Get(key string) (any, bool) {
	if _, ok := c.index.Get(key); !ok {
		return nil, false
	}
	return c.delegate.Get(key)
}

func (c *lruCache) Remove(key string) {
	c.index.Remove(key)
	c.delegate.Remove(key)
}

func (c *lruCache) Clear() {
	c.index.Purge()
	c.delegate.Clear()
}

func (c *lruCache) Size() int { return c.index.Len() }

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import "sync"

// synchronizedCache serializes every operation behind a single mutex,
// matching org.apache.ibatis.cache.decorators.SynchronizedCache. It is the
// outermost-but-one layer (spec.md §4.6 composition order): coarser than
// any per-key locking the layers below it may do, but cheap and safe to
// reach for whenever a delegate isn't otherwise concurrency-safe.
type synchronizedCache struct {
	mu       sync.Mutex
	delegate Cache
}

// WithSynchronized wraps delegate so all operations run under one mutex.
func WithSynchronized(delegate Cache) Cache {
	return &synchronizedCache{delegate: delegate}
}

func (c *synchronizedCache) ID() string { return c.delegate.ID() }

func (c *synchronizedCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Put(key, value)
}

func (c *synchronizedCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Get(key)
}

func (c *synchronizedCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Remove(key)
}

func (c *synchronizedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}

func (c *synchronizedCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}

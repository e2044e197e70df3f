// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import "sync"

// fifoCache bounds delegate by insertion order: on overflow it evicts the
// head of the insertion queue, independent of access pattern (spec.md §4.6
// FIFO), mirroring org.apache.ibatis.cache.decorators.FifoCache.
type fifoCache struct {
	mu       sync.Mutex
	delegate Cache
	queue    []string
	capacity int
}

// WithFIFO wraps delegate with a first-in-first-out bound at capacity.
func WithFIFO(delegate Cache, capacity int) Cache {
	return &fifoCache{delegate: delegate, capacity: capacity}
}

func (c *fifoCache) ID() string { return c.delegate.ID() }

func (c *fifoCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Put(key, value)
	c.queue = append(c.queue, key)
	for len(c.queue) > c.capacity {
		head := c.queue[0]
		c.queue = c.queue[1:]
		c.delegate.Remove(head)
	}
}

func (c *fifoCache) Get(key string) (any, bool) { return c.delegate.Get(key) }

func (c *fifoCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Remove(key)
	for i, k := range c.queue {
		if k == key {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
}

func (c *fifoCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.delegate.Clear()
}

func (c *fifoCache) Size() int { return c.delegate.Size() }

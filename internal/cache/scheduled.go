// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"sync"
	"time"
)

// scheduledCache clears delegate whenever more than interval has elapsed
// since the last clear, checked lazily on every access (spec.md §4.6
// Scheduled), mirroring org.apache.ibatis.cache.decorators.ScheduledCache.
type scheduledCache struct {
	mu        sync.Mutex
	delegate  Cache
	interval  time.Duration
	lastClear time.Time
}

// WithScheduled wraps delegate so it self-clears after interval has passed
// since the last clear (explicit or lazily-triggered).
func WithScheduled(delegate Cache, interval time.Duration) Cache {
	return &scheduledCache{delegate: delegate, interval: interval, lastClear: time.Now()}
}

func (c *scheduledCache) clearIfDue() {
	if time.Since(c.lastClear) > c.interval {
		c.delegate.Clear()
		c.lastClear = time.Now()
	}
}

func (c *scheduledCache) ID() string { return c.delegate.ID() }

func (c *scheduledCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearIfDue()
	c.delegate.Put(key, value)
}

func (c *scheduledCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearIfDue()
	return c.delegate.Get(key)
}

func (c *scheduledCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearIfDue()
	c.delegate.Remove(key)
}

func (c *scheduledCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
	c.lastClear = time.Now()
}

func (c *scheduledCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearIfDue()
	return c.delegate.Size()
}

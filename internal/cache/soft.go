// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"runtime"
	"slices"
	"sync"
	"weak"
)

// entryBox is the heap object a weak pointer tracks; boxing lets the GC
// collect the payload independently of bookkeeping held by softCache.
type entryBox struct{ value any }

// softCache stores values behind weak pointers so the GC can reclaim cold
// entries under memory pressure, while a FIFO of hard references protects
// the last N reads from being collected — spec.md §4.6 Soft/Weak: "stores
// soft/weak references; maintains a FIFO of hard references of the last N
// reads to protect hot entries; sweeps a reference queue on each mutating
// operation to evict collected entries." Go has no distinct soft-vs-weak
// reference tiers, so both variants share this implementation atop
// weak.Pointer (Go 1.24+); runtime.AddCleanup plays the role of the
// reference queue.
type softCache struct {
	mu       sync.Mutex
	delegate Cache
	weakRefs map[string]weak.Pointer[entryBox]
	hardFIFO []string
	hardSize int
	hardVals map[string]*entryBox
	collected []string // keys whose cleanup fired since the last sweep
}

// WithSoft wraps delegate with weak-reference storage and a hot-entry FIFO
// of hardRefs hard references.
func WithSoft(delegate Cache, hardRefs int) Cache {
	if hardRefs <= 0 {
		hardRefs = 256
	}
	return &softCache{
		delegate: delegate,
		weakRefs: map[string]weak.Pointer[entryBox]{},
		hardSize: hardRefs,
		hardVals: map[string]*entryBox{},
	}
}

func (c *softCache) ID() string { return c.delegate.ID() }

func (c *softCache) sweep() {
	for _, key := range c.collected {
		c.delegate.Remove(key)
		delete(c.weakRefs, key)
	}
	c.collected = c.collected[:0]
}

func (c *softCache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	box := &entryBox{value: value}
	c.delegate.Put(key, value)
	c.weakRefs[key] = weak.Make(box)

	runtime.AddCleanup(box, func(k string) {
		c.mu.Lock()
		c.collected = append(c.collected, k)
		c.mu.Unlock()
	}, key)

	c.promote(key, box)
}

// promote pushes key's box onto the hard-reference FIFO, evicting the
// oldest entry from hard-protection (but not from the cache itself) once
// hardSize is exceeded.
func (c *softCache) promote(key string, box *entryBox) {
	c.hardVals[key] = box
	c.hardFIFO = append(c.hardFIFO, key)
	for len(c.hardFIFO) > c.hardSize {
		old := c.hardFIFO[0]
		c.hardFIFO = c.hardFIFO[1:]
		if !slices.Contains(c.hardFIFO, old) {
			delete(c.hardVals, old)
		}
	}
}

func (c *softCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()

	ref, ok := c.weakRefs[key]
	if !ok {
		return nil, false
	}
	box := ref.Value()
	if box == nil {
		delete(c.weakRefs, key)
		c.delegate.Remove(key)
		return nil, false
	}
	c.promote(key, box)
	return c.delegate.Get(key)
}

func (c *softCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.weakRefs, key)
	delete(c.hardVals, key)
	c.delegate.Remove(key)
}

func (c *softCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weakRefs = map[string]weak.Pointer[entryBox]{}
	c.hardVals = map[string]*entryBox{}
	c.hardFIFO = nil
	c.collected = nil
	c.delegate.Clear()
}

func (c *softCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	return c.delegate.Size()
}

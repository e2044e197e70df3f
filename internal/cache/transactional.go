// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import "sync"

// txCache stages writes for one session against a single underlying Cache
// until Commit or Rollback, mirroring
// org.apache.ibatis.cache.decorators.TransactionalCache: reads pass straight
// through to delegate (and are recorded as "missed" when absent, so a
// rollback can release any blocking-cache lock they left held); writes are
// buffered and only applied to delegate on Commit.
type txCache struct {
	mu             sync.Mutex
	delegate       Cache
	clearOnCommit  bool
	pendingWrites  map[string]any
	missedEntries  map[string]struct{}
}

func newTxCache(delegate Cache) *txCache {
	return &txCache{delegate: delegate, pendingWrites: map[string]any{}, missedEntries: map[string]struct{}{}}
}

func (t *txCache) get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.delegate.Get(key)
	if !ok {
		t.missedEntries[key] = struct{}{}
	}
	return v, ok
}

func (t *txCache) put(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingWrites[key] = value
}

func (t *txCache) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearOnCommit = true
	t.pendingWrites = map[string]any{}
}

// commit optionally clears delegate first, then releases the lock any missed
// read left behind by removing keys that weren't subsequently written, then
// flushes staged writes into delegate.
func (t *txCache) commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clearOnCommit {
		t.delegate.Clear()
	}
	t.unlockMissed()
	for k, v := range t.pendingWrites {
		t.delegate.Put(k, v)
	}
	t.reset()
}

// rollback discards staged writes and releases any locks left by missed
// reads, without touching delegate's existing entries.
func (t *txCache) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unlockMissed()
	t.reset()
}

// unlockMissed removes from delegate every key that this session read and
// missed but never wrote — on a blocking-backed delegate this is what
// releases the per-key lock Get left held.
func (t *txCache) unlockMissed() {
	for k := range t.missedEntries {
		if _, written := t.pendingWrites[k]; !written {
			t.delegate.Remove(k)
		}
	}
}

func (t *txCache) reset() {
	t.clearOnCommit = false
	t.pendingWrites = map[string]any{}
	t.missedEntries = map[string]struct{}{}
}

// TransactionManager scopes staged cache writes to one session, across
// however many distinct namespace caches that session touches (spec.md §4.7
// Transactional Cache Manager), mirroring TransactionalCacheManager.
type TransactionManager struct {
	mu     sync.Mutex
	staged map[Cache]*txCache
}

// NewTransactionManager builds an empty per-session cache transaction
// manager.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{staged: map[Cache]*txCache{}}
}

func (m *TransactionManager) scope(c Cache) *txCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staged[c]
	if !ok {
		s = newTxCache(c)
		m.staged[c] = s
	}
	return s
}

// Get reads through to c, recording a miss so Rollback can release any
// blocking-cache lock it left held.
func (m *TransactionManager) Get(c Cache, key string) (any, bool) {
	return m.scope(c).get(key)
}

// Put stages value under key against c; it is not visible through Get and
// not applied to c until Commit.
func (m *TransactionManager) Put(c Cache, key string, value any) {
	m.scope(c).put(key, value)
}

// Clear stages a full clear of c, applied on Commit before staged writes
// are flushed.
func (m *TransactionManager) Clear(c Cache) {
	m.scope(c).clear()
}

// Commit flushes every cache this session touched: staged clears, then
// releases any missed-read locks, then staged writes.
func (m *TransactionManager) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.staged {
		s.commit()
	}
}

// Rollback discards every staged write across every cache this session
// touched and releases any missed-read locks.
func (m *TransactionManager) Rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.staged {
		s.rollback()
	}
}

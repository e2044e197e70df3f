// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache implements the composable cache layers (C6) and the
// transactional cache manager (C7), modeled on
// org.apache.ibatis.cache.{Cache,CacheKey,TransactionalCacheManager} and its
// decorators package.
package cache

import (
	"fmt"
)

const (
	defaultMultiplier = 37
	defaultHash       = 17
)

// Key is the deterministic identity of one query invocation, composed of
// the statement id, row range, SQL text, and each bound parameter value, in
// order (spec.md §3 Cache Key). Equality requires hash, checksum, count, and
// every component to match in order — the checksum/count pair lets Equal
// short-circuit before doing the full per-component comparison.
type Key struct {
	hash     int64
	checksum int64
	count    int
	updates  []any
}

// NewKey builds an empty Key; call Update for each component in order.
func NewKey() *Key {
	return &Key{hash: defaultHash}
}

// Update folds one more component into the key, in the order statement id,
// row offset, row limit, SQL text, then each parameter value — the caller is
// responsible for calling Update in a stable order.
func (k *Key) Update(v any) *Key {
	h := hashOf(v)
	k.count++
	k.checksum += int64(h)
	k.hash = defaultMultiplier*k.hash + int64(h)*int64(k.count)
	k.updates = append(k.updates, v)
	return k
}

// Equal implements the identity law from spec.md §8: K1 == K2 iff their
// (statement id, row range, SQL, component sequence) are equal — approximated
// here by hash+checksum+count+ordered component equality.
func (k *Key) Equal(o *Key) bool {
	if k == o {
		return true
	}
	if o == nil {
		return false
	}
	if k.hash != o.hash || k.checksum != o.checksum || k.count != o.count {
		return false
	}
	for i := range k.updates {
		if fmt.Sprint(k.updates[i]) != fmt.Sprint(o.updates[i]) {
			return false
		}
	}
	return true
}

// String renders a stable string form of the key, used as the hash-map key
// for Go-native cache storage (Go maps can't key on arbitrary-content
// structs the way Java's hashCode/equals pair can, so the composed string is
// the map key while Equal remains available for explicit comparisons).
func (k *Key) String() string {
	return fmt.Sprintf("%d:%d:%d:%v", k.hash, k.checksum, k.count, k.updates)
}

func hashOf(v any) int32 {
	s := fmt.Sprintf("%#v", v)
	var h int32 = 0
	for i := 0; i < len(s); i++ {
		h = 31*h + int32(s[i])
	}
	return h
}

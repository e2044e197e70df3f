// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "time"

// State holds the pool's counters and connection lists, per spec.md §3
// "Pool State". Guarded exclusively by Pool.mu.
type State struct {
	Idle   []*Wrapped // reclaimed wrappers, ordered oldest-released-first
	Active []*Wrapped // handed-out wrappers, earliest-checked-out first

	RequestCount               int64
	WaitCount                  int64
	AccumulatedRequestTime     time.Duration
	AccumulatedWaitTime        time.Duration
	BadConnectionCount         int64
	ClaimedOverdueCount        int64
	AccumulatedCheckoutTime    time.Duration
}

// Snapshot is an immutable copy of State's counters, safe to read without
// holding the pool mutex.
type Snapshot struct {
	IdleCount, ActiveCount                     int
	RequestCount, WaitCount                    int64
	AccumulatedRequestTime, AccumulatedWaitTime time.Duration
	BadConnectionCount, ClaimedOverdueCount     int64
	AccumulatedCheckoutTime                     time.Duration
}

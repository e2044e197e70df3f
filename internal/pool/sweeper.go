// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"time"

	"github.com/illumitacit/gostd/quit"
	"github.com/petermattis/goid"
)

// StartIdleSweeper launches a background goroutine that periodically pings
// every idle connection and evicts any that fail, registering with the
// process-wide quit waiter so an orderly shutdown can wait for it to exit
// rather than leaking a goroutine, the same coordination the teacher's
// XOrm commit-queue workers use (context_commit.go's setupCommit). Optional:
// a pool that never calls this only reclaims bad idle connections lazily, on
// the next Acquire that happens to pick them (spec.md §4.4's baseline
// behavior).
func (p *Pool) StartIdleSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	quit.GetWaiter().Add(1)
	gid := goid.Get()
	go func() {
		defer quit.GetWaiter().Done()
		p.log("idle sweeper started on goroutine %d", gid)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweepIdle()
			case <-quit.GetQuitChannel():
				p.log("idle sweeper on goroutine %d stopping on quit signal", gid)
				return
			}
		}
	}()
}

// sweepIdle pings every currently-idle connection and drops any that fail,
// outside of the on-demand validation Acquire already does.
func (p *Pool) sweepIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	alive := p.state.Idle[:0]
	for _, w := range p.state.Idle {
		if w.ping(context.Background(), p.cfg.PingQuery, p.cfg.PingEnabled, 0) {
			alive = append(alive, w)
		} else {
			w.valid = false
			w.real.Close()
			p.state.BadConnectionCount++
		}
	}
	p.state.Idle = alive
}

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlbatis",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total cache lookups per cache id, partitioned by outcome.",
	}, []string{"cache_id", "outcome"})
)

func init() {
	prometheus.MustRegister(cacheRequests)
}

// loggingCache tracks hit ratio the way
// org.apache.ibatis.cache.decorators.LoggingCache logs it, but reports
// through Prometheus counters (spec.md §11 Domain Stack: cache
// observability) instead of a log line per request.
type loggingCache struct {
	delegate Cache
	requests int64
	hits     int64
}

// WithLogging wraps delegate with request/hit counters exported under
// sqlbatis_cache_requests_total{cache_id,outcome}.
func WithLogging(delegate Cache) Cache {
	return &loggingCache{delegate: delegate}
}

func (c *loggingCache) ID() string { return c.delegate.ID() }

func (c *loggingCache) Put(key string, value any) { c.delegate.Put(key, value) }

func (c *loggingCache) Get(key string) (any, bool) {
	atomic.AddInt64(&c.requests, 1)
	v, ok := c.delegate.Get(key)
	if ok {
		atomic.AddInt64(&c.hits, 1)
		cacheRequests.WithLabelValues(c.delegate.ID(), "hit").Inc()
	} else {
		cacheRequests.WithLabelValues(c.delegate.ID(), "miss").Inc()
	}
	return v, ok
}

func (c *loggingCache) Remove(key string) { c.delegate.Remove(key) }

func (c *loggingCache) Clear() { c.delegate.Clear() }

func (c *loggingCache) Size() int { return c.delegate.Size() }

// HitRatio reports the running hit ratio, 0 when no requests have been
// made yet.
func (c *loggingCache) HitRatio() float64 {
	reqs := atomic.LoadInt64(&c.requests)
	if reqs == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&c.hits)) / float64(reqs)
}

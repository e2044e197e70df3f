// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg Config) (*Pool, sqlmock.Sqlmock) {
	// MonitorPingsOption is required for ExpectPing to be enforced; Pool.Acquire
	// pings unconditionally (internal/pool/connection.go's ping), so every
	// Acquire and sweepIdle pass needs a matching expectation here.
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, cfg), mock
}

func TestAcquireAddsToActive(t *testing.T) {
	p, mock := newTestPool(t, Config{})
	mock.ExpectPing()

	w, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, w)

	snap := p.Snapshot()
	require.Equal(t, 1, snap.ActiveCount)
	require.Equal(t, 0, snap.IdleCount)
	require.EqualValues(t, 1, snap.RequestCount)
}

func TestReleaseReturnsToIdleForReuse(t *testing.T) {
	p, mock := newTestPool(t, Config{})
	mock.ExpectPing() // Acquire
	mock.ExpectPing() // second Acquire, pinging the reclaimed idle wrapper

	w, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	snap := p.Snapshot()
	require.Equal(t, 0, snap.ActiveCount)
	require.Equal(t, 1, snap.IdleCount)

	w2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, w2)

	snap = p.Snapshot()
	require.Equal(t, 1, snap.ActiveCount)
	require.Equal(t, 0, snap.IdleCount)
}

func TestWrappedCloseIsIdempotent(t *testing.T) {
	p, mock := newTestPool(t, Config{})
	mock.ExpectPing()

	w, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	// the wrapper returned by Acquire is invalidated on release (a fresh
	// wrapper takes its place in Idle); closing the stale handle again must
	// be a harmless no-op rather than double-releasing into Idle.
	require.NoError(t, w.Close())

	snap := p.Snapshot()
	require.Equal(t, 1, snap.IdleCount)
}

func TestForceCloseAllDrainsActiveAndIdle(t *testing.T) {
	p, mock := newTestPool(t, Config{})
	mock.ExpectPing()

	w, err := p.Acquire(context.Background())
	require.NoError(t, err)
	_ = w

	var events []string
	p.OnEvent(func(msg string) { events = append(events, msg) })

	p.ForceCloseAll()

	snap := p.Snapshot()
	require.Equal(t, 0, snap.ActiveCount)
	require.Equal(t, 0, snap.IdleCount)
	require.NotEmpty(t, events)
}

func TestSweepIdleKeepsHealthyConnections(t *testing.T) {
	p, mock := newTestPool(t, Config{})
	mock.ExpectPing()

	conn, err := p.db.Conn(context.Background())
	require.NoError(t, err)
	p.state.Idle = []*Wrapped{{pool: p, real: conn, valid: true}}

	p.sweepIdle()

	require.Len(t, p.state.Idle, 1)
	require.EqualValues(t, 0, p.state.BadConnectionCount)
}

func TestSweepIdleDropsFailedConnections(t *testing.T) {
	p, mock := newTestPool(t, Config{})
	mock.ExpectPing().WillReturnError(errors.New("connection reset"))

	conn, err := p.db.Conn(context.Background())
	require.NoError(t, err)
	p.state.Idle = []*Wrapped{{pool: p, real: conn, valid: true}}

	p.sweepIdle()

	require.Empty(t, p.state.Idle)
	require.EqualValues(t, 1, p.state.BadConnectionCount)
}

/*
Copyright 2026 The keel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logutil "github.com/keelhttp/keel/pkg/logging"
)

func TestTryExecuteUsesReservedWorker(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 4, MinWorkers: 1, IdleTimeout: time.Minute,
		StopTimeout: time.Second, ReservedWorkers: 1,
	})
	assert.Eventually(t, func() bool {
		reserved := p.reserved.Load()
		return reserved != nil && reserved.available() == 1
	}, 5*time.Second, 5*time.Millisecond, "a reserved worker should park shortly after start")

	done := make(chan struct{})
	require.True(t, p.TryExecute(RunnableFunc(func() { close(done) })),
		"handoff should succeed with a parked reserved worker")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handed-off job did not run")
	}
}

func TestTryExecuteMissesWithoutReservedWorker(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 4, MinWorkers: 1, IdleTimeout: time.Minute,
		StopTimeout: time.Second, ReservedWorkers: 0,
	})
	assert.False(t, p.TryExecute(RunnableFunc(func() {})),
		"handoff must miss when the reserved executor is disabled")
}

func TestReservedSlotRefillsAfterHandoff(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 4, MinWorkers: 1, IdleTimeout: time.Minute,
		StopTimeout: time.Second, ReservedWorkers: 1,
	})
	reserved := p.reserved.Load()
	require.NotNil(t, reserved)
	assert.Eventually(t, func() bool { return reserved.available() == 1 }, 5*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	require.True(t, p.TryExecute(RunnableFunc(func() { close(done) })))
	<-done

	assert.Eventually(t, func() bool { return reserved.available() == 1 }, 5*time.Second, 5*time.Millisecond,
		"the consumed reserved slot should be refilled")
}

func TestReservedWorkerIdleTimeout(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 4, MinWorkers: 1, IdleTimeout: 30 * time.Millisecond,
		StopTimeout: time.Second, ReservedWorkers: 1,
	})
	reserved := p.reserved.Load()
	require.NotNil(t, reserved)
	assert.Eventually(t, func() bool { return reserved.available() <= 1 }, 5*time.Second, 5*time.Millisecond)

	// Idle reserved workers give their slot back; they re-park while demand
	// lasts, so only observe that handoffs still work afterwards.
	time.Sleep(100 * time.Millisecond)
	done := make(chan struct{})
	if p.TryExecute(RunnableFunc(func() { close(done) })) {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("handed-off job did not run after idle cycling")
		}
	}
}

func TestAvailableReservedWorkersTracksParkedSet(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 4, MinWorkers: 1, IdleTimeout: time.Minute,
		StopTimeout: time.Second, ReservedWorkers: 2,
	})
	assert.Eventually(t, func() bool { return p.AvailableReservedWorkers() == 2 },
		5*time.Second, 5*time.Millisecond, "the parked count should reach the reserved capacity")
	assert.Equal(t, 2, p.ReservedWorkers(), "the capacity is a separate, static figure")

	gate := make(chan struct{})
	require.True(t, p.TryExecute(RunnableFunc(func() { <-gate })))
	assert.Eventually(t, func() bool { return p.AvailableReservedWorkers() == 2 },
		5*time.Second, 5*time.Millisecond, "a consumed slot is refilled while the job runs")
	close(gate)
}

func TestTryExecuteAfterStopMisses(t *testing.T) {
	t.Parallel()
	p, err := New(Config{
		MaxWorkers: 4, MinWorkers: 1, IdleTimeout: time.Minute,
		StopTimeout: time.Second, ReservedWorkers: 1,
	}, logutil.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	assert.False(t, p.TryExecute(RunnableFunc(func() {})), "handoff must miss once the pool has stopped")
}

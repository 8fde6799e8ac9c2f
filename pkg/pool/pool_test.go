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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logutil "github.com/keelhttp/keel/pkg/logging"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg, logutil.NewTestLogger())
	require.NoError(t, err, "pool construction should succeed")
	require.NoError(t, p.Start(), "pool start should succeed")
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

// closableJob records whether it was run or closed when the pool stopped with
// it still queued.
type closableJob struct {
	ran    atomic.Bool
	closed atomic.Bool
}

func (j *closableJob) Run()         { j.ran.Store(true) }
func (j *closableJob) Close() error { j.closed.Store(true); return nil }

func TestConfigValidation(t *testing.T) {
	t.Parallel()
	logger := logutil.NewTestLogger()

	t.Run("rejects non-positive max", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{MaxWorkers: 0}, logger)
		assert.Error(t, err, "max workers of zero should be rejected")
	})

	t.Run("rejects min above max", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{MaxWorkers: 2, MinWorkers: 3}, logger)
		assert.Error(t, err, "min workers above max should be rejected")
	})

	t.Run("defaults queue capacity", func(t *testing.T) {
		t.Parallel()
		cfg := Config{MaxWorkers: 4, MinWorkers: 2}
		require.NoError(t, cfg.validateAndDefault())
		assert.Equal(t, 8*1024, cfg.QueueCapacity, "queue capacity should default from min workers, floored at 8")
	})
}

func TestSubmitBeforeStartRejected(t *testing.T) {
	t.Parallel()
	p, err := New(Config{MaxWorkers: 2, StopTimeout: time.Second}, logutil.NewTestLogger())
	require.NoError(t, err)
	err = p.Submit(RunnableFunc(func() {}))
	assert.ErrorIs(t, err, ErrRejected, "submissions before Start should be rejected")
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{MaxWorkers: 2, StopTimeout: time.Second})
	assert.ErrorIs(t, p.Start(), ErrAlreadyStarted, "second Start should fail")
}

func TestSubmitRunsJob(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{MaxWorkers: 4, MinWorkers: 1, IdleTimeout: time.Minute, StopTimeout: time.Second})

	done := make(chan struct{})
	require.NoError(t, p.Submit(RunnableFunc(func() { close(done) })), "submit should succeed")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not executed")
	}
}

func TestPoolStartsMinWorkers(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{MaxWorkers: 8, MinWorkers: 3, IdleTimeout: time.Minute, StopTimeout: time.Second})
	assert.Eventually(t, func() bool { return p.Workers() == 3 }, 5*time.Second, 5*time.Millisecond,
		"pool should come up to its minimum size")
}

func TestPoolGrowsUnderLoadAndCapsAtMax(t *testing.T) {
	t.Parallel()
	const maxWorkers = 5
	p := newTestPool(t, Config{MaxWorkers: maxWorkers, MinWorkers: 1, IdleTimeout: time.Minute, StopTimeout: time.Second})

	gate := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < maxWorkers*2; i++ {
		started.Add(1)
		require.NoError(t, p.Submit(RunnableFunc(func() {
			started.Done()
			<-gate
		})), "submit under load should succeed while the queue has room")
	}

	assert.Eventually(t, func() bool { return p.Workers() == maxWorkers }, 5*time.Second, 5*time.Millisecond,
		"pool should grow to max workers under load")
	assert.LessOrEqual(t, p.Workers(), maxWorkers, "pool must never exceed max workers")

	close(gate)
	started.Wait()
}

func TestThousandJobsBoundedWorkers(t *testing.T) {
	t.Parallel()
	const jobs = 1000
	p := newTestPool(t, Config{MaxWorkers: 10, MinWorkers: 2, IdleTimeout: time.Minute, StopTimeout: 5 * time.Second})

	var executed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		require.NoError(t, p.Submit(RunnableFunc(func() {
			executed.Add(1)
			wg.Done()
		})), "all submissions should fit in the default queue")
		assert.LessOrEqual(t, p.Workers(), 10, "worker count must stay within the maximum")
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("only %d of %d jobs ran", executed.Load(), jobs)
	}
	assert.Equal(t, int64(jobs), executed.Load(), "every accepted job must run exactly once")
}

func TestQueueFullRejectsAndRollsBack(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 1, MinWorkers: 1, IdleTimeout: time.Minute,
		QueueCapacity: 1, StopTimeout: time.Second, ReservedWorkers: 0,
	})

	gate := make(chan struct{})
	defer close(gate)
	running := make(chan struct{})
	require.NoError(t, p.Submit(RunnableFunc(func() {
		close(running)
		<-gate
	})))
	<-running

	// Fill the single queue slot, then overflow it.
	require.NoError(t, p.Submit(RunnableFunc(func() {})), "queue should hold one job")
	err := p.Submit(RunnableFunc(func() {}))
	require.ErrorIs(t, err, ErrRejected, "overflow submission should be rejected")

	assert.Equal(t, 1, p.Workers(), "rejection must roll back the speculative worker claim")
	assert.Equal(t, 1, p.QueueSize(), "rejected job must not remain queued")
}

func TestShrinkToMin(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{MaxWorkers: 6, MinWorkers: 1, IdleTimeout: 30 * time.Millisecond, StopTimeout: time.Second, ReservedWorkers: 0})

	gate := make(chan struct{})
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(RunnableFunc(func() { <-gate })))
	}
	assert.Eventually(t, func() bool { return p.Workers() >= 4 }, 5*time.Second, 5*time.Millisecond,
		"pool should grow to absorb the blocked jobs")
	close(gate)

	// One worker may exit per idle timeout period, so allow several periods.
	assert.Eventually(t, func() bool { return p.Workers() == 1 }, 10*time.Second, 10*time.Millisecond,
		"idle workers should shrink back to the minimum one per timeout period")
}

func TestLowWorkersMarginExactArithmetic(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{
		MaxWorkers: 2, MinWorkers: 2, IdleTimeout: time.Minute,
		QueueCapacity: 8, StopTimeout: time.Second, LowWorkersThreshold: 1, ReservedWorkers: 0,
	})
	assert.Eventually(t, func() bool { return p.IdleWorkers() == 2 }, 5*time.Second, 5*time.Millisecond,
		"both minimum workers should report idle")

	// Idle pool: margin = max - workers + idle - queue = 2 - 2 + 2 - 0.
	assert.Equal(t, 2, p.LowWorkersMargin(), "idle pool margin should equal max workers")
	assert.False(t, p.IsLowOnWorkers(), "idle pool should not be low on workers")

	gate := make(chan struct{})
	defer close(gate)
	var running sync.WaitGroup
	running.Add(2)
	require.NoError(t, p.Submit(RunnableFunc(func() { running.Done(); <-gate })))
	require.NoError(t, p.Submit(RunnableFunc(func() { running.Done(); <-gate })))
	running.Wait()

	// Saturated: margin = 2 - 2 + 0 - 0 = 0 <= threshold 1.
	assert.Eventually(t, func() bool { return p.LowWorkersMargin() == 0 }, 5*time.Second, 5*time.Millisecond,
		"saturated pool margin should be zero")
	assert.True(t, p.IsLowOnWorkers(), "saturated pool should report low on workers")

	// Queue two more: margin goes negative and stays meaningful.
	require.NoError(t, p.Submit(RunnableFunc(func() {})))
	require.NoError(t, p.Submit(RunnableFunc(func() {})))
	assert.Equal(t, -2, p.LowWorkersMargin(), "queued jobs must drive the margin negative, not clamp at zero")
}

func TestSetMaxWorkersGrowsAndShrinksLimits(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{MaxWorkers: 4, MinWorkers: 2, IdleTimeout: time.Minute, StopTimeout: time.Second})

	p.SetMaxWorkers(1)
	assert.Equal(t, 1, p.MaxWorkers(), "max workers should take the new value")
	assert.Equal(t, 1, p.MinWorkers(), "min workers should be clamped down to the new max")

	p.SetMinWorkers(3)
	assert.Equal(t, 3, p.MinWorkers(), "min workers should take the new value")
	assert.Equal(t, 3, p.MaxWorkers(), "max workers should be pulled up to the new min")
	assert.Eventually(t, func() bool { return p.Workers() >= 3 }, 5*time.Second, 5*time.Millisecond,
		"raising the minimum should start workers")
}

func TestJobPanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()
	p := newTestPool(t, Config{MaxWorkers: 1, MinWorkers: 1, IdleTimeout: time.Minute, StopTimeout: time.Second, ReservedWorkers: 0})

	require.NoError(t, p.Submit(RunnableFunc(func() { panic("boom") })))
	done := make(chan struct{})
	require.NoError(t, p.Submit(RunnableFunc(func() { close(done) })))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
	assert.Equal(t, 1, p.Workers(), "the panicking job must not reduce the worker count")
}

func TestStopRejectsAndDisposesQueuedJobs(t *testing.T) {
	t.Parallel()
	p, err := New(Config{
		MaxWorkers: 1, MinWorkers: 1, IdleTimeout: time.Minute,
		QueueCapacity: 4, StopTimeout: 200 * time.Millisecond, ReservedWorkers: 0,
	}, logutil.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, p.Start())

	gate := make(chan struct{})
	running := make(chan struct{})
	require.NoError(t, p.Submit(RunnableFunc(func() { close(running); <-gate })))
	<-running

	queued := &closableJob{}
	require.NoError(t, p.Submit(queued), "job should queue behind the blocked worker")

	stopDone := make(chan error, 1)
	go func() { stopDone <- p.Stop() }()

	// Unblock the worker after stop has begun so it can observe the sentinel.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.ErrorIs(t, p.Submit(RunnableFunc(func() {})), ErrRejected, "submissions after Stop must be rejected")
	assert.True(t, queued.closed.Load() || queued.ran.Load(),
		"a queued closable job must be either run before the drain or closed by it")
	assert.NoError(t, p.Join(contextWithTimeout(t, time.Second)), "Join should observe the stopped pool")
}

func contextWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()
	p, err := New(Config{MaxWorkers: 2, MinWorkers: 1, IdleTimeout: time.Minute, StopTimeout: time.Second}, logutil.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	assert.NoError(t, p.Stop(), "stopping a stopped pool should be a no-op")
}

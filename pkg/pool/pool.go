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
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	logutil "github.com/keelhttp/keel/pkg/logging"
)

// Runnable is a unit of work executed by the pool. A Runnable that also
// implements io.Closer is closed instead of abandoned if it is still queued
// when the pool stops.
type Runnable interface {
	Run()
}

// RunnableFunc adapts a plain function to the Runnable interface.
type RunnableFunc func()

// Run invokes the function.
func (f RunnableFunc) Run() { f() }

// noopJob wakes an idle worker during shutdown without doing any work.
type noopJob struct{}

func (noopJob) Run() {}

var (
	// ErrRejected is returned by Submit when the job cannot be accepted,
	// either because the pool is stopped or because the queue is at capacity.
	ErrRejected = errors.New("job rejected")
	// ErrAlreadyStarted is returned by Start on a pool that is already
	// running.
	ErrAlreadyStarted = errors.New("pool already started")
)

// Pool is an elastic worker pool. The zero value is not usable; construct
// with New and call Start before submitting jobs.
type Pool struct {
	logger logr.Logger

	// counts packs (workers, netIdle); see counts.go. Initialized to the
	// stopped sentinel so submissions before Start are rejected.
	counts atomic.Uint64
	// lastShrink is the time of the last worker start or shrink, in
	// nanoseconds. Shrink candidates race on a CAS of this value so at most
	// one worker exits per idle-timeout period.
	lastShrink atomic.Int64

	jobs     chan Runnable
	reserved atomic.Pointer[reservedExecutor]

	maxWorkers          atomic.Int32
	minWorkers          atomic.Int32
	idleTimeout         atomic.Int64 // nanoseconds
	stopTimeout         time.Duration
	reservedWorkers     int
	lowWorkersThreshold int

	// interrupt is closed during the aggressive half of Stop to unblock idle
	// waiters. Go has no thread interrupt; this is its idiomatic equivalent.
	interrupt     chan struct{}
	interruptOnce sync.Once

	wg      sync.WaitGroup
	stopped chan struct{}
}

// New creates a pool with the given configuration. The pool is not running
// until Start is called.
func New(cfg Config, logger logr.Logger) (*Pool, error) {
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	p := &Pool{
		logger:              logger.WithName("pool"),
		jobs:                make(chan Runnable, cfg.QueueCapacity),
		stopTimeout:         cfg.StopTimeout,
		reservedWorkers:     cfg.ReservedWorkers,
		lowWorkersThreshold: cfg.LowWorkersThreshold,
		interrupt:           make(chan struct{}),
		stopped:             make(chan struct{}),
	}
	p.maxWorkers.Store(int32(cfg.MaxWorkers))
	p.minWorkers.Store(int32(cfg.MinWorkers))
	p.idleTimeout.Store(int64(cfg.IdleTimeout))
	p.counts.Store(encodeCounts(stoppedSentinel, 0))
	return p, nil
}

// Start brings the pool up to its minimum size and arms the reserved
// executor.
func (p *Pool) Start() error {
	if !p.counts.CompareAndSwap(encodeCounts(stoppedSentinel, 0), encodeCounts(0, 0)) {
		return ErrAlreadyStarted
	}
	if p.reservedWorkers != 0 {
		capacity := p.reservedWorkers
		if capacity < 0 {
			capacity = max(1, min(runtime.GOMAXPROCS(0), int(p.maxWorkers.Load())/10))
		}
		p.reserved.Store(newReservedExecutor(p, capacity, time.Duration(p.idleTimeout.Load()), p.logger))
	}
	p.ensureWorkers()
	p.logger.V(logutil.DEFAULT).Info("Pool started",
		"minWorkers", p.minWorkers.Load(), "maxWorkers", p.maxWorkers.Load())
	return nil
}

// Submit enqueues a job, starting a new worker if there is insufficient idle
// capacity to absorb it and the pool is below its maximum size. It returns
// ErrRejected if the pool is stopped or the queue is at capacity; a rejected
// job is never run.
func (p *Pool) Submit(job Runnable) error {
	var startWorker bool
	for {
		counts := p.counts.Load()
		workers := countsWorkers(counts)
		if workers == stoppedSentinel {
			return fmt.Errorf("%w: pool is stopped", ErrRejected)
		}

		// Net idle is already reduced by the queue size, so a positive value
		// means a worker will pick this job up without a new start.
		netIdle := countsNetIdle(counts)
		startWorker = netIdle <= 0 && workers < p.maxWorkers.Load()

		next := workers
		if startWorker {
			next++
		}
		if p.counts.CompareAndSwap(counts, encodeCounts(next, netIdle-1)) {
			break
		}
	}

	select {
	case p.jobs <- job:
	default:
		// Queue full: reverse the count changes before rejecting.
		delta := int32(0)
		if startWorker {
			delta = -1
		}
		if p.addCounts(delta, 1) {
			p.logger.V(logutil.DEFAULT).Info("Job queue at capacity, rejecting job", "queueSize", len(p.jobs))
		}
		return fmt.Errorf("%w: job queue at capacity", ErrRejected)
	}

	if startWorker {
		p.startWorker()
	}
	return nil
}

// TryExecute hands the job directly to a parked reserved worker without
// queuing. It returns false, without side effects, when no reserved worker is
// available.
func (p *Pool) TryExecute(job Runnable) bool {
	reserved := p.reserved.Load()
	return reserved != nil && reserved.tryExecute(job)
}

// Stop transitions the pool to stopping, rejects all further submissions,
// wakes idle workers, and waits up to the stop timeout for them to exit.
// Jobs still queued afterwards are closed if they implement io.Closer and
// logged as abandoned otherwise.
func (p *Pool) Stop() error {
	var workers int32
	for {
		counts := p.counts.Load()
		workers = countsWorkers(counts)
		if workers == stoppedSentinel {
			return nil
		}
		if p.counts.CompareAndSwap(counts, encodeCounts(stoppedSentinel, countsNetIdle(counts))) {
			break
		}
	}
	p.logger.V(logutil.DEFAULT).Info("Pool stopping", "workers", workers)

	if reserved := p.reserved.Swap(nil); reserved != nil {
		reserved.stop()
	}

	var errs error
	if p.stopTimeout > 0 {
		// Wake idle waiters so they observe the sentinel and exit naturally.
		for i := int32(0); i < workers; i++ {
			select {
			case p.jobs <- noopJob{}:
			default:
			}
		}

		// Half the timeout for natural drain, then get more aggressive.
		if !p.joinWorkers(p.stopTimeout / 2) {
			p.interruptWorkers()
			if !p.joinWorkers(p.stopTimeout / 2) {
				errs = multierr.Append(errs, fmt.Errorf("workers still running after %s", p.stopTimeout))
			}
		}
	}
	p.interruptWorkers()

	// Dispose of anything left on the queue.
	for {
		select {
		case job := <-p.jobs:
			switch j := job.(type) {
			case noopJob:
			case io.Closer:
				if err := j.Close(); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("closing queued job: %w", err))
				}
			default:
				p.logger.V(logutil.DEFAULT).Info("Stopped without executing or closing job", "job", fmt.Sprintf("%v", job))
			}
		default:
			close(p.stopped)
			p.logger.V(logutil.DEFAULT).Info("Pool stopped", "err", errs)
			return errs
		}
	}
}

// Join blocks until the pool has stopped or the context is done.
func (p *Pool) Join(ctx context.Context) error {
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMaxWorkers adjusts the maximum pool size and re-runs the growth pass.
func (p *Pool) SetMaxWorkers(n int) {
	p.maxWorkers.Store(int32(n))
	if p.minWorkers.Load() > int32(n) {
		p.minWorkers.Store(int32(n))
	}
	p.ensureWorkers()
}

// SetMinWorkers adjusts the minimum pool size and re-runs the growth pass.
func (p *Pool) SetMinWorkers(n int) {
	p.minWorkers.Store(int32(n))
	if p.maxWorkers.Load() < int32(n) {
		p.maxWorkers.Store(int32(n))
	}
	p.ensureWorkers()
}

// MaxWorkers returns the configured maximum number of workers.
func (p *Pool) MaxWorkers() int { return int(p.maxWorkers.Load()) }

// MinWorkers returns the configured minimum number of workers.
func (p *Pool) MinWorkers() int { return int(p.minWorkers.Load()) }

// Workers returns the total number of workers currently in the pool.
func (p *Pool) Workers() int {
	return max(0, int(countsWorkers(p.counts.Load())))
}

// IdleWorkers returns the net idle worker count, floored at zero.
func (p *Pool) IdleWorkers() int {
	return max(0, int(countsNetIdle(p.counts.Load())))
}

// BusyWorkers returns the number of workers currently running jobs,
// excluding parked reserved workers.
func (p *Pool) BusyWorkers() int {
	available := 0
	if reserved := p.reserved.Load(); reserved != nil {
		available = reserved.available()
	}
	return p.Workers() - p.IdleWorkers() - available
}

// QueueSize returns the number of jobs queued waiting for a worker.
func (p *Pool) QueueSize() int { return len(p.jobs) }

// ReservedWorkers returns the capacity of the reserved executor.
func (p *Pool) ReservedWorkers() int {
	if reserved := p.reserved.Load(); reserved != nil {
		return reserved.capacity
	}
	return max(0, p.reservedWorkers)
}

// AvailableReservedWorkers returns the number of workers currently parked in
// the reserved set, ready for an instant handoff.
func (p *Pool) AvailableReservedWorkers() int {
	if reserved := p.reserved.Load(); reserved != nil {
		return reserved.available()
	}
	return 0
}

// LowWorkersMargin returns maxWorkers - workers + idleWorkers - queueSize.
// The value may be negative; operators depend on the numeric margin, not just
// its sign.
func (p *Pool) LowWorkersMargin() int {
	return p.MaxWorkers() - p.Workers() + p.IdleWorkers() - p.QueueSize()
}

// IsLowOnWorkers reports whether the margin has fallen to or below the
// configured threshold.
func (p *Pool) IsLowOnWorkers() bool {
	return p.LowWorkersMargin() <= p.lowWorkersThreshold
}

// ensureWorkers starts workers until the minimum is met, and beyond it while
// net idle capacity is negative and the pool is below its maximum. Run at
// start, after configuration changes, and by exiting workers to close the
// race between a shrink and a concurrent enqueue.
func (p *Pool) ensureWorkers() {
	for {
		counts := p.counts.Load()
		workers := countsWorkers(counts)
		if workers == stoppedSentinel {
			break
		}
		netIdle := countsNetIdle(counts)
		if workers < p.minWorkers.Load() || (netIdle < 0 && workers < p.maxWorkers.Load()) {
			if p.counts.CompareAndSwap(counts, encodeCounts(workers+1, netIdle)) {
				p.startWorker()
			}
			continue
		}
		break
	}
}

// startWorker launches a worker whose slot has already been claimed in
// counts. Starting a goroutine cannot fail, so unlike a thread start there is
// no rollback path here; a worker that finds the pool stopped undoes nothing
// and exits immediately.
func (p *Pool) startWorker() {
	p.lastShrink.Store(time.Now().UnixNano())
	p.wg.Add(1)
	go p.runWorker()
}

// addCounts atomically adjusts (workers, netIdle), refusing the update once
// the pool is stopping.
func (p *Pool) addCounts(deltaWorkers, deltaNetIdle int32) bool {
	for {
		counts := p.counts.Load()
		workers := countsWorkers(counts)
		if workers == stoppedSentinel {
			return false
		}
		next := encodeCounts(workers+deltaWorkers, countsNetIdle(counts)+deltaNetIdle)
		if p.counts.CompareAndSwap(counts, next) {
			return true
		}
	}
}

func (p *Pool) interruptWorkers() {
	p.interruptOnce.Do(func() { close(p.interrupt) })
}

func (p *Pool) joinWorkers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// runWorker is the worker loop: poll the queue, block up to the idle timeout,
// shrink when the shrink CAS is won, and run jobs with panic recovery.
func (p *Pool) runWorker() {
	var job Runnable
	defer func() {
		idleDelta := int32(0)
		if job == nil {
			idleDelta = -1
		}
		p.addCounts(-1, idleDelta)
		p.wg.Done()
		// We may have shrunk just as a job was queued for us, so check again
		// whether there are enough workers to meet demand.
		p.ensureWorkers()
	}()

	// All workers start idle. addCounts refuses every update once the pool
	// is stopping, so the deferred rollback is safe in all exit paths.
	if !p.addCounts(0, 1) {
		return
	}

	for {
		if job != nil {
			// We ran a job; signal that we are idle again.
			if !p.addCounts(0, 1) {
				return
			}
			job = nil
		} else if countsWorkers(p.counts.Load()) == stoppedSentinel {
			return
		}

		// Look for an immediately available job before blocking.
		select {
		case job = <-p.jobs:
		default:
		}

		if job == nil {
			idleTimeout := time.Duration(p.idleTimeout.Load())
			if idleTimeout <= 0 {
				select {
				case job = <-p.jobs:
				case <-p.interrupt:
					return
				}
			} else {
				timer := time.NewTimer(idleTimeout)
				select {
				case job = <-p.jobs:
					timer.Stop()
				case <-p.interrupt:
					timer.Stop()
					return
				case <-timer.C:
					// Still no job; maybe we should shrink. The CAS on
					// lastShrink lets at most one idle worker exit per
					// timeout period.
					if int32(p.Workers()) > p.minWorkers.Load() {
						last := p.lastShrink.Load()
						now := time.Now().UnixNano()
						if (last == 0 || now-last > int64(idleTimeout)) && p.lastShrink.CompareAndSwap(last, now) {
							p.logger.V(logutil.TRACE).Info("Shrinking pool", "workers", p.Workers())
							return
						}
					}
					continue
				}
			}
		}

		if job != nil {
			p.runJob(job)
		}
	}
}

func (p *Pool) runJob(job Runnable) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(fmt.Errorf("panic in pool job: %v", r), "Job panicked")
		}
	}()
	job.Run()
}

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
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	logutil "github.com/keelhttp/keel/pkg/logging"
)

// reservedExecutor keeps a small LIFO stack of workers parked for instant
// handoff. tryExecute pops the most recently parked worker, which is the one
// most likely to still be cache-warm, and hands it the job without touching
// the shared queue. Consumed slots are refilled from the owning pool.
type reservedExecutor struct {
	pool        *Pool
	capacity    int
	idleTimeout time.Duration
	logger      logr.Logger

	mu      sync.Mutex
	stack   []*reservedWorker
	pending int // workers requested from the pool but not yet parked
	stopped bool

	stopCh chan struct{}
}

type reservedWorker struct {
	// tasks is buffered so the handoff in tryExecute never blocks: each
	// parked worker receives at most one job per park.
	tasks chan Runnable
}

func newReservedExecutor(p *Pool, capacity int, idleTimeout time.Duration, logger logr.Logger) *reservedExecutor {
	r := &reservedExecutor{
		pool:        p,
		capacity:    capacity,
		idleTimeout: idleTimeout,
		logger:      logger.WithName("reserved"),
		stopCh:      make(chan struct{}),
	}
	r.ensureReserved()
	return r
}

// tryExecute hands the job to a parked reserved worker, returning false
// without queuing when none is available.
func (r *reservedExecutor) tryExecute(job Runnable) bool {
	if job == nil {
		return false
	}
	r.mu.Lock()
	var worker *reservedWorker
	if n := len(r.stack); n > 0 {
		worker = r.stack[n-1]
		r.stack = r.stack[:n-1]
	}
	r.mu.Unlock()

	// Refill regardless of outcome: either we consumed a slot or we missed
	// and want one parked for next time.
	r.ensureReserved()

	if worker == nil {
		return false
	}
	worker.tasks <- job
	return true
}

func (r *reservedExecutor) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// ensureReserved asks the pool for another worker to park, up to capacity.
// A rejected submission simply leaves the slot unfilled.
func (r *reservedExecutor) ensureReserved() {
	r.mu.Lock()
	if r.stopped || len(r.stack)+r.pending >= r.capacity {
		r.mu.Unlock()
		return
	}
	r.pending++
	r.mu.Unlock()

	worker := &reservedWorker{tasks: make(chan Runnable, 1)}
	if err := r.pool.Submit(RunnableFunc(func() { r.run(worker) })); err != nil {
		r.mu.Lock()
		r.pending--
		r.mu.Unlock()
		r.logger.V(logutil.DEBUG).Info("Could not reserve worker", "err", err)
	}
}

// run parks the worker on the stack and waits for a handoff, an idle timeout,
// or executor stop. On timeout the worker must win removal from the stack
// before exiting; losing the removal means a job is already in flight for it.
func (r *reservedExecutor) run(worker *reservedWorker) {
	first := true
	for {
		r.mu.Lock()
		if first {
			r.pending--
			first = false
		}
		if r.stopped || len(r.stack) >= r.capacity {
			r.mu.Unlock()
			return
		}
		r.stack = append(r.stack, worker)
		r.mu.Unlock()

		timer := time.NewTimer(r.idleTimeout)
		select {
		case job := <-worker.tasks:
			timer.Stop()
			r.runJob(job)
		case <-r.stopCh:
			timer.Stop()
			r.remove(worker)
			// A handoff may have popped us just before stop; don't drop it.
			r.drainTask(worker)
			return
		case <-timer.C:
			if r.remove(worker) {
				r.logger.V(logutil.TRACE).Info("Reserved worker idle timeout")
				return
			}
			// Not on the stack: either a handoff popped us and its job is on
			// the way, or stop cleared the stack.
			select {
			case job := <-worker.tasks:
				r.runJob(job)
			case <-r.stopCh:
				r.drainTask(worker)
				return
			}
		}
	}
}

func (r *reservedExecutor) remove(worker *reservedWorker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.stack {
		if w == worker {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			return true
		}
	}
	return false
}

// drainTask runs a job that was handed off concurrently with stop, if any.
func (r *reservedExecutor) drainTask(worker *reservedWorker) {
	select {
	case job := <-worker.tasks:
		r.runJob(job)
	default:
	}
}

func (r *reservedExecutor) runJob(job Runnable) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Errorf("panic in reserved job: %v", rec), "Job panicked")
		}
	}()
	job.Run()
}

func (r *reservedExecutor) stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.stack = nil
	r.mu.Unlock()
	close(r.stopCh)
}

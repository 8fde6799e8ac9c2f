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

// Package pool provides the elastic worker pool that supplies the goroutines
// driving keel channels.
//
// The pool accepts opaque jobs and executes them on a self-sizing set of
// workers, growing up to a configured maximum and shrinking idle capacity
// down to a configured minimum. All sizing decisions are taken with a single
// compare-and-swap on one atomic word that packs the worker count together
// with the net idle count (idle workers minus queued jobs), so "should a
// worker be started" and "is a worker idle" are decided without locks and
// without lost-wakeup races.
//
// A small set of reserved workers is kept parked for latency-sensitive
// handoff: TryExecute gives a job to the most recently parked reserved worker
// without touching the queue, which keeps async resumption off the shared
// queue's tail latency.
package pool

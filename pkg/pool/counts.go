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

import "math"

// stoppedSentinel marks the worker count once the pool is stopping. No worker
// may start and no submission may succeed while the sentinel is set.
const stoppedSentinel = math.MinInt32

// The pool's sizing state is two signed 32-bit counts packed into one uint64
// so both can be read and updated with a single compare-and-swap:
//
//	hi: total worker count, or stoppedSentinel once stopping
//	lo: net idle = idle workers - queued jobs
//
// The net idle count is reduced by the queue size so that workers that are
// idle but about to take a queued job are not counted as available.

func encodeCounts(workers, netIdle int32) uint64 {
	return uint64(uint32(workers))<<32 | uint64(uint32(netIdle))
}

func countsWorkers(counts uint64) int32 {
	return int32(uint32(counts >> 32))
}

func countsNetIdle(counts uint64) int32 {
	return int32(uint32(counts))
}

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

// Package channel implements the per-connection request lifecycle engine.
//
// Each connection owns one Channel, which carries one HTTP exchange at a
// time and is recycled between exchanges. A mutex-guarded state machine
// (State) computes the next Action for the single goroutine driving the
// exchange; events arriving from other goroutines (content, write
// completions, async resumes, deadline expiry) only record intent and, when
// the channel is parked, schedule a pool worker to pick it up. Application
// code therefore never races itself: dispatches, callbacks, timeouts, and
// error synthesis all run on whichever worker currently holds the channel.
//
// The response side commits exactly once. The first write freezes the
// status line and headers into a snapshot handed to the transport; a
// concurrent commit loser is failed with ErrCommitted. After a commit the
// response can no longer be replaced, so later failures abort the
// connection instead of producing an error page.
package channel

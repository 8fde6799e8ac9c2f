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

package channel

import "errors"

var (
	// ErrCommitted is delivered to a writer that lost the commit race while
	// supplying response metadata. The losing write is rejected, never
	// silently dropped or interleaved.
	ErrCommitted = errors.New("response already committed")

	// ErrAsyncTimeout is recorded when an async wait exceeds its deadline and
	// the application's timeout handler neither resumed, completed, nor
	// errored the exchange.
	ErrAsyncTimeout = errors.New("async wait timed out")

	// ErrNotSuspended is returned by the async entry points when the exchange
	// is not in an async cycle.
	ErrNotSuspended = errors.New("channel not suspended")

	// ErrOutputClosed is delivered to writes attempted after the response
	// output has been closed.
	ErrOutputClosed = errors.New("output closed")

	// ErrReadPending is returned by Input.Read when no content is available
	// yet; the read callback fires once content arrives.
	ErrReadPending = errors.New("read pending")

	// errInsufficientContent aborts exchanges that wrote fewer bytes than the
	// declared content length.
	errInsufficientContent = errors.New("insufficient content written")
)

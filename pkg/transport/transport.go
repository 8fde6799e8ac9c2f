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

// Package transport defines the boundary between the request-lifecycle engine
// and the wire-level layer that parses HTTP bytes and writes response frames.
// The engine consumes parsed request metadata pushed through the channel's
// On* callbacks and produces response frames through the Transport interface;
// nothing in this package touches HTTP syntax.
package transport

// Callback is notified exactly once of the outcome of an asynchronous
// transport operation.
type Callback interface {
	Succeeded()
	Failed(err error)
}

type callbackFuncs struct {
	succeeded func()
	failed    func(error)
}

func (c callbackFuncs) Succeeded() {
	if c.succeeded != nil {
		c.succeeded()
	}
}

func (c callbackFuncs) Failed(err error) {
	if c.failed != nil {
		c.failed(err)
	}
}

// NewCallback builds a Callback from the two outcome functions; either may be
// nil.
func NewCallback(succeeded func(), failed func(error)) Callback {
	return callbackFuncs{succeeded: succeeded, failed: failed}
}

// NoopCallback ignores both outcomes.
var NoopCallback Callback = callbackFuncs{}

// Transport writes response frames produced by a channel to the underlying
// connection.
type Transport interface {
	// Send queues a write. meta is non-nil exactly when this write carries
	// the response line and headers (a commit or an interim response); head
	// suppresses the body for HEAD requests; last marks the final frame of
	// the response. The callback fires once the write is queued to the wire
	// or has failed.
	Send(meta *ResponseMeta, head bool, content []byte, last bool, cb Callback)

	// Abort hard-closes the underlying connection. Used when a well-formed
	// response can no longer be produced.
	Abort(err error)

	// OnCompleted is invoked when the exchange has fully completed, letting
	// the transport recycle or close the connection.
	OnCompleted()
}

// ContentProducer is optionally implemented by transports that buffer parsed
// content and can produce more of it on demand, without waiting for I/O
// readiness.
type ContentProducer interface {
	// ProduceContent synchronously pushes any buffered request content into
	// the channel.
	ProduceContent()
}

// ContentDemander is optionally implemented by transports that need to be
// told when the application is waiting for content, so they can register
// read interest with the connection.
type ContentDemander interface {
	// DemandContent registers read interest; the transport calls back into
	// the channel once content arrives.
	DemandContent()
}

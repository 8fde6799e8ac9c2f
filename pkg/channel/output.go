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

import "sync"

// Output is the response-content side of a channel. Writes funnel through
// the channel's commit pipeline, so the first write freezes the response
// headers and every write is ordered behind the commit.
type Output struct {
	ch *Channel

	mu            sync.Mutex
	closed        bool
	writeCallback func()
}

func newOutput(ch *Channel) *Output {
	return &Output{ch: ch}
}

// Write sends content, committing the response on the first call. last marks
// the final frame; no writes may follow it. Write blocks until the transport
// has accepted the frame.
func (o *Output) Write(content []byte, last bool) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutputClosed
	}
	if last {
		o.closed = true
	}
	o.mu.Unlock()
	return o.ch.write(content, last)
}

// Close ends the response, sending the final empty frame if one has not been
// sent. Closing an already closed output is a no-op.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()
	return o.ch.write(nil, true)
}

// Reopen makes the output writable again. Used by error dispatch to replace
// an uncommitted response.
func (o *Output) Reopen() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = false
}

// IsClosed reports whether the output has been closed.
func (o *Output) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Written returns the total content bytes handed to the transport.
func (o *Output) Written() int64 {
	return o.ch.BytesWritten()
}

// SetWriteCallback registers the function run on a driving goroutine once an
// asynchronous write completes.
func (o *Output) SetWriteCallback(cb func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writeCallback = cb
}

func (o *Output) callback() func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writeCallback
}

func (o *Output) recycle() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = false
	o.writeCallback = nil
}

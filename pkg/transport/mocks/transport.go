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

// Package mocks provides transport doubles for exercising channels without a
// real connection.
package mocks

import (
	"sync"

	"github.com/keelhttp/keel/pkg/transport"
)

// Frame is one recorded Send call.
type Frame struct {
	Meta    *transport.ResponseMeta
	Head    bool
	Content []byte
	Last    bool
}

// MockTransport records every frame a channel sends. By default callbacks
// succeed synchronously; Manual mode queues them so tests can drive
// completion from another goroutine, and FailNext scripts a failure for the
// next frame.
type MockTransport struct {
	mu        sync.Mutex
	frames    []Frame
	pending   []transport.Callback
	manual    bool
	failNext  error
	aborted   []error
	completed int
}

var _ transport.Transport = &MockTransport{}

// NewMockTransport returns a transport whose callbacks succeed inline.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// SetManual switches callback driving to the test: Send queues callbacks
// until ReleaseOne or ReleaseAll fires them.
func (m *MockTransport) SetManual(manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual = manual
}

// FailNext makes the next Send fail its callback with err.
func (m *MockTransport) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MockTransport) Send(meta *transport.ResponseMeta, head bool, content []byte, last bool, cb transport.Callback) {
	m.mu.Lock()
	frame := Frame{Meta: meta, Head: head, Last: last}
	if len(content) > 0 {
		frame.Content = append([]byte(nil), content...)
	}
	m.frames = append(m.frames, frame)
	fail := m.failNext
	m.failNext = nil
	if m.manual && fail == nil {
		m.pending = append(m.pending, cb)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	if fail != nil {
		cb.Failed(fail)
		return
	}
	cb.Succeeded()
}

func (m *MockTransport) Abort(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, err)
}

func (m *MockTransport) OnCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

// ReleaseOne succeeds the oldest pending callback, returning false when none
// is queued.
func (m *MockTransport) ReleaseOne() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	cb := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	cb.Succeeded()
	return true
}

// ReleaseAll succeeds every pending callback in order.
func (m *MockTransport) ReleaseAll() {
	for m.ReleaseOne() {
	}
}

// Frames returns a copy of the recorded frames.
func (m *MockTransport) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// CommittedMeta returns the metadata of the first non-interim commit frame,
// or nil.
func (m *MockTransport) CommittedMeta() *transport.ResponseMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.frames {
		if f.Meta != nil && !f.Meta.IsInterim() {
			return f.Meta
		}
	}
	return nil
}

// ContentWritten returns the concatenated content of all frames.
func (m *MockTransport) ContentWritten() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, f := range m.frames {
		out = append(out, f.Content...)
	}
	return out
}

// Aborts returns the errors passed to Abort.
func (m *MockTransport) Aborts() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]error, len(m.aborted))
	copy(out, m.aborted)
	return out
}

// Completions returns how many times OnCompleted fired.
func (m *MockTransport) Completions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// MockProducingTransport also satisfies transport.ContentProducer, invoking
// ProduceFn when the channel asks for buffered content.
type MockProducingTransport struct {
	*MockTransport
	ProduceFn func()

	mu       sync.Mutex
	produced int
}

var _ transport.ContentProducer = &MockProducingTransport{}

// NewMockProducingTransport returns a producing transport double.
func NewMockProducingTransport() *MockProducingTransport {
	return &MockProducingTransport{MockTransport: NewMockTransport()}
}

func (m *MockProducingTransport) ProduceContent() {
	m.mu.Lock()
	m.produced++
	fn := m.ProduceFn
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Produced returns how many times the channel demanded production.
func (m *MockProducingTransport) Produced() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.produced
}

// MockDemandingTransport also satisfies transport.ContentDemander, invoking
// DemandFn when the channel registers read interest.
type MockDemandingTransport struct {
	*MockTransport
	DemandFn func()

	mu       sync.Mutex
	demanded int
}

var _ transport.ContentDemander = &MockDemandingTransport{}

// NewMockDemandingTransport returns a demanding transport double.
func NewMockDemandingTransport() *MockDemandingTransport {
	return &MockDemandingTransport{MockTransport: NewMockTransport()}
}

func (m *MockDemandingTransport) DemandContent() {
	m.mu.Lock()
	m.demanded++
	fn := m.DemandFn
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Demanded returns how many times read interest was registered.
func (m *MockDemandingTransport) Demanded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.demanded
}

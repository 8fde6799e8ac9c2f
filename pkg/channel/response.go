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

import (
	"net/http"
	"sync"

	"github.com/keelhttp/keel/pkg/transport"
)

// Response accumulates the status line and headers the application wants to
// send. It is mutable until the commit snapshot is taken; afterwards every
// mutation returns ErrCommitted.
type Response struct {
	mu sync.Mutex

	status        int
	reason        string
	fields        transport.Fields
	contentLength int64
	frozen        bool
}

func newResponse() *Response {
	return &Response{status: http.StatusOK, contentLength: transport.ContentLengthUnknown}
}

// SetStatus sets the response status code.
func (r *Response) SetStatus(status int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrCommitted
	}
	r.status = status
	r.reason = ""
	return nil
}

// SetReason sets an explicit reason phrase; empty falls back to the standard
// text for the status.
func (r *Response) SetReason(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrCommitted
	}
	r.reason = reason
	return nil
}

// Status returns the current status code.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetHeader replaces all values of a header.
func (r *Response) SetHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrCommitted
	}
	r.fields.Set(name, value)
	return nil
}

// AddHeader appends a header value.
func (r *Response) AddHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrCommitted
	}
	r.fields.Add(name, value)
	return nil
}

// Header returns the first value of a header.
func (r *Response) Header(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fields.Get(name)
}

// SetContentLength declares the response body length.
func (r *Response) SetContentLength(length int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrCommitted
	}
	r.contentLength = length
	return nil
}

// ContentLength returns the declared body length, or
// transport.ContentLengthUnknown.
func (r *Response) ContentLength() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentLength
}

// IsFrozen reports whether the commit snapshot has been taken.
func (r *Response) IsFrozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// snapshot freezes the response and returns an independent wire-level view
// of it. Later mutations cannot alter what was handed to the transport.
func (r *Response) snapshot() *transport.ResponseMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	reason := r.reason
	if reason == "" {
		reason = http.StatusText(r.status)
	}
	return &transport.ResponseMeta{
		Status:        r.status,
		Reason:        reason,
		Version:       "HTTP/1.1",
		Fields:        r.fields.Clone(),
		ContentLength: r.contentLength,
	}
}

// recycle resets the response for the next exchange.
func (r *Response) recycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = http.StatusOK
	r.reason = ""
	r.fields = nil
	r.contentLength = transport.ContentLengthUnknown
	r.frozen = false
}

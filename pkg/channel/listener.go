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

import "github.com/keelhttp/keel/pkg/transport"

// Listener observes the lifecycle of every exchange on a channel. Callbacks
// run synchronously on the goroutine that produced the event, in listener
// registration order. A panicking listener is logged and skipped; it never
// perturbs the exchange or the other listeners.
//
// Content callbacks receive read-only views; listeners must not retain or
// modify them.
type Listener interface {
	// OnRequestBegin fires when request metadata arrives, before dispatch.
	OnRequestBegin(ch *Channel)
	// OnBeforeDispatch fires just before the application entry point runs.
	OnBeforeDispatch(ch *Channel)
	// OnDispatchFailure fires when the application returns or raises an
	// error.
	OnDispatchFailure(ch *Channel, err error)
	// OnAfterDispatch fires when the application entry point returns,
	// whether or not it failed.
	OnAfterDispatch(ch *Channel)
	// OnRequestContent fires for each parsed request content chunk.
	OnRequestContent(ch *Channel, content []byte)
	// OnRequestContentEnd fires when the last content chunk has arrived.
	OnRequestContentEnd(ch *Channel)
	// OnRequestTrailers fires when request trailers arrive.
	OnRequestTrailers(ch *Channel, trailers transport.Fields)
	// OnRequestEnd fires when the request side of the exchange is complete.
	OnRequestEnd(ch *Channel)
	// OnRequestFailure fires when the request side fails (bad message,
	// truncated body).
	OnRequestFailure(ch *Channel, err error)
	// OnResponseBegin fires when the response commit begins.
	OnResponseBegin(ch *Channel)
	// OnResponseCommit fires once the response line and headers have been
	// accepted by the transport.
	OnResponseCommit(ch *Channel)
	// OnResponseContent fires for each response content chunk accepted by
	// the transport.
	OnResponseContent(ch *Channel, content []byte)
	// OnResponseEnd fires when the response has been fully written.
	OnResponseEnd(ch *Channel)
	// OnResponseFailure fires when the response can no longer be produced.
	OnResponseFailure(ch *Channel, err error)
	// OnComplete fires exactly once when the whole exchange has finished.
	OnComplete(ch *Channel)
}

// ListenerFuncs adapts a sparse set of callback functions into a Listener.
// Nil members are skipped.
type ListenerFuncs struct {
	RequestBegin      func(ch *Channel)
	BeforeDispatch    func(ch *Channel)
	DispatchFailure   func(ch *Channel, err error)
	AfterDispatch     func(ch *Channel)
	RequestContent    func(ch *Channel, content []byte)
	RequestContentEnd func(ch *Channel)
	RequestTrailers   func(ch *Channel, trailers transport.Fields)
	RequestEnd        func(ch *Channel)
	RequestFailure    func(ch *Channel, err error)
	ResponseBegin     func(ch *Channel)
	ResponseCommit    func(ch *Channel)
	ResponseContent   func(ch *Channel, content []byte)
	ResponseEnd       func(ch *Channel)
	ResponseFailure   func(ch *Channel, err error)
	Complete          func(ch *Channel)
}

var _ Listener = &ListenerFuncs{}

func (l *ListenerFuncs) OnRequestBegin(ch *Channel) {
	if l.RequestBegin != nil {
		l.RequestBegin(ch)
	}
}

func (l *ListenerFuncs) OnBeforeDispatch(ch *Channel) {
	if l.BeforeDispatch != nil {
		l.BeforeDispatch(ch)
	}
}

func (l *ListenerFuncs) OnDispatchFailure(ch *Channel, err error) {
	if l.DispatchFailure != nil {
		l.DispatchFailure(ch, err)
	}
}

func (l *ListenerFuncs) OnAfterDispatch(ch *Channel) {
	if l.AfterDispatch != nil {
		l.AfterDispatch(ch)
	}
}

func (l *ListenerFuncs) OnRequestContent(ch *Channel, content []byte) {
	if l.RequestContent != nil {
		l.RequestContent(ch, content)
	}
}

func (l *ListenerFuncs) OnRequestContentEnd(ch *Channel) {
	if l.RequestContentEnd != nil {
		l.RequestContentEnd(ch)
	}
}

func (l *ListenerFuncs) OnRequestTrailers(ch *Channel, trailers transport.Fields) {
	if l.RequestTrailers != nil {
		l.RequestTrailers(ch, trailers)
	}
}

func (l *ListenerFuncs) OnRequestEnd(ch *Channel) {
	if l.RequestEnd != nil {
		l.RequestEnd(ch)
	}
}

func (l *ListenerFuncs) OnRequestFailure(ch *Channel, err error) {
	if l.RequestFailure != nil {
		l.RequestFailure(ch, err)
	}
}

func (l *ListenerFuncs) OnResponseBegin(ch *Channel) {
	if l.ResponseBegin != nil {
		l.ResponseBegin(ch)
	}
}

func (l *ListenerFuncs) OnResponseCommit(ch *Channel) {
	if l.ResponseCommit != nil {
		l.ResponseCommit(ch)
	}
}

func (l *ListenerFuncs) OnResponseContent(ch *Channel, content []byte) {
	if l.ResponseContent != nil {
		l.ResponseContent(ch, content)
	}
}

func (l *ListenerFuncs) OnResponseEnd(ch *Channel) {
	if l.ResponseEnd != nil {
		l.ResponseEnd(ch)
	}
}

func (l *ListenerFuncs) OnResponseFailure(ch *Channel, err error) {
	if l.ResponseFailure != nil {
		l.ResponseFailure(ch, err)
	}
}

func (l *ListenerFuncs) OnComplete(ch *Channel) {
	if l.Complete != nil {
		l.Complete(ch)
	}
}

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
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/keelhttp/keel/pkg/logging"
	"github.com/keelhttp/keel/pkg/pool"
	"github.com/keelhttp/keel/pkg/transport"
)

// Handler is the application entry point invoked on each dispatch. Returning
// an error (or panicking) routes the exchange to error-response synthesis.
type Handler interface {
	Handle(ch *Channel) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ch *Channel) error

func (f HandlerFunc) Handle(ch *Channel) error { return f(ch) }

// ResumeHandler is optionally implemented by handlers that want async
// resumes delivered separately from fresh dispatches.
type ResumeHandler interface {
	OnAsyncResume(ch *Channel) error
}

// TimeoutHandler is optionally implemented by handlers that want a say when
// an async wait exceeds its deadline. If the handler neither resumes,
// completes, nor errors the exchange, a 500 is produced.
type TimeoutHandler interface {
	OnAsyncTimeout(ch *Channel)
}

// Executor schedules channel resumptions. *pool.Pool satisfies it.
type Executor interface {
	Submit(job pool.Runnable) error
	TryExecute(job pool.Runnable) bool
}

// Recorder receives lifecycle measurements. Implementations must be safe for
// concurrent use. All methods are optional in spirit; a nil Recorder is
// skipped entirely.
type Recorder interface {
	RequestStarted()
	ResponseCommitted(status int)
	RequestCompleted(status int, duration time.Duration, bytesWritten int64)
}

// Channel drives the lifecycle of one HTTP exchange at a time on a
// connection. The transport pushes parsed request events in through the On*
// methods; the state machine decides what runs next; at most one goroutine
// is ever inside Handle. Channels are recycled between exchanges on the same
// connection.
type Channel struct {
	logger   logr.Logger
	config   Config
	state    *State
	executor Executor
	tr       transport.Transport
	handler  Handler

	// listeners is append-only and must be fully populated before the first
	// request arrives.
	listeners []Listener
	recorder  Recorder

	request   *transport.RequestMeta
	requestID string
	startTime time.Time

	response *Response
	output   *Output
	input    *Input

	written       atomic.Int64
	requests      atomic.Uint64
	committedMeta atomic.Pointer[transport.ResponseMeta]

	// handled is touched only on the driving goroutine.
	handled bool
}

// New builds a channel bound to one connection's transport.
func New(logger logr.Logger, cfg Config, executor Executor, tr transport.Transport, handler Handler) *Channel {
	_, producible := tr.(transport.ContentProducer)
	c := &Channel{
		logger:   logger.WithName("channel"),
		config:   cfg,
		state:    NewState(producible),
		executor: executor,
		tr:       tr,
		handler:  handler,
		response: newResponse(),
		input:    newInput(),
	}
	c.output = newOutput(c)
	return c
}

// AddListener registers a lifecycle listener. Not safe to call once requests
// are flowing.
func (c *Channel) AddListener(l Listener) { c.listeners = append(c.listeners, l) }

// SetRecorder attaches a metrics recorder. Not safe to call once requests
// are flowing.
func (c *Channel) SetRecorder(r Recorder) { c.recorder = r }

// Request returns the metadata of the request in flight, nil before
// OnRequest.
func (c *Channel) Request() *transport.RequestMeta { return c.request }

// RequestID returns the identifier assigned to the request in flight.
func (c *Channel) RequestID() string { return c.requestID }

// Response returns the mutable response under construction.
func (c *Channel) Response() *Response { return c.response }

// Output returns the response content writer.
func (c *Channel) Output() *Output { return c.output }

// Input returns the request content reader.
func (c *Channel) Input() *Input { return c.input }

// BytesWritten returns the response content bytes accepted by the transport
// for the request in flight.
func (c *Channel) BytesWritten() int64 { return c.written.Load() }

// Requests returns how many exchanges this channel has carried.
func (c *Channel) Requests() uint64 { return c.requests.Load() }

// IsCommitted reports whether the response line and headers are frozen.
func (c *Channel) IsCommitted() bool { return c.state.IsResponseCommitted() }

// State exposes the state machine, mainly for introspection and tests.
func (c *Channel) State() *State { return c.state }

// Run lets a channel be submitted directly to a worker pool.
func (c *Channel) Run() { c.Handle() }

// ---------------------------------------------------------------------------
// Transport-facing events.

// OnRequest begins a new exchange with the parsed request metadata. The
// transport follows up with Execute (or a direct Handle) to dispatch it.
func (c *Channel) OnRequest(meta *transport.RequestMeta) {
	c.request = meta
	c.requestID = uuid.NewString()
	c.startTime = time.Now()
	c.requests.Add(1)
	if c.recorder != nil {
		c.recorder.RequestStarted()
	}
	c.logger.V(logging.DEBUG).Info("request received",
		"id", c.requestID, "method", meta.Method, "uri", meta.URI)
	c.notifyRequestBegin()
}

// OnContent delivers a parsed request content chunk.
func (c *Channel) OnContent(content []byte) {
	view := content[:len(content):len(content)]
	c.notifyRequestContent(view)
	c.input.addContent(content)
	if c.state.OnContentAdded() {
		c.schedule()
	}
}

// OnContentComplete marks the end of the request content.
func (c *Channel) OnContentComplete() {
	c.input.eofReached()
	c.notifyRequestContentEnd()
	if c.state.OnContentAdded() {
		c.schedule()
	}
}

// OnTrailers delivers request trailers.
func (c *Channel) OnTrailers(trailers transport.Fields) {
	c.notifyRequestTrailers(trailers)
}

// OnRequestComplete marks the request side of the exchange fully received.
func (c *Channel) OnRequestComplete() {
	c.notifyRequestEnd()
}

// OnEarlyEOF marks a truncated request body.
func (c *Channel) OnEarlyEOF() {
	c.input.earlyEOFReached()
	c.notifyRequestFailure(&transport.QuietError{Err: fmt.Errorf("early EOF")})
	if c.state.OnContentAdded() {
		c.schedule()
	}
}

// OnBadMessage responds to malformed input that never reaches dispatch. The
// canned response is produced directly, outside the handle loop, because no
// application code runs for it.
func (c *Channel) OnBadMessage(bad *transport.BadMessageError) {
	c.notifyRequestFailure(bad)
	action, err := c.state.Handling()
	if err != nil || action != ActionDispatch {
		c.abort(bad)
		return
	}
	c.minimalErrorResponse(bad.Code, bad.Reason)
	c.state.Completed()
	if next, uerr := c.state.Unhandle(); uerr == nil && next == ActionTerminated {
		c.onCompleted()
	}
}

// OnWritePossible records that the transport can accept more response
// content, waking the channel to run the write callback.
func (c *Channel) OnWritePossible() {
	if c.state.OnWritePossible() {
		c.schedule()
	}
}

// Execute hands the channel to the worker pool for dispatch.
func (c *Channel) Execute() error {
	return c.executor.Submit(c)
}

// ---------------------------------------------------------------------------
// Application-facing operations.

// Read copies request content into p, registering read interest when no
// content is buffered yet. See Input.Read for the error contract.
func (c *Channel) Read(p []byte) (int, error) {
	n, err := c.input.Read(p)
	if errors.Is(err, ErrReadPending) {
		c.state.OnReadUnready()
	}
	return n, err
}

// Write sends response content through the output, committing on the first
// call.
func (c *Channel) Write(content []byte, last bool) error {
	return c.output.Write(content, last)
}

// MarkHandled records that the application accepted the request. An exchange
// that completes unhandled, uncommitted, and with no output receives a
// synthesized 404.
func (c *Channel) MarkHandled() { c.handled = true }

// SendError schedules an error response, replacing whatever uncommitted
// response has been built so far.
func (c *Channel) SendError(status int, reason string) error {
	return c.state.SendError(status, reason)
}

// SendInterim sends a 1xx response. Interim responses never commit the
// exchange; the real response follows.
func (c *Channel) SendInterim(status int) error {
	meta := &transport.ResponseMeta{
		Status:        status,
		Reason:        http.StatusText(status),
		Version:       "HTTP/1.1",
		ContentLength: 0,
	}
	if !meta.IsInterim() {
		return fmt.Errorf("status %d is not interim", status)
	}
	done := make(chan error, 1)
	cb := transport.NewCallback(func() { done <- nil }, func(err error) { done <- err })
	c.sendResponse(meta, false, nil, false, cb)
	return <-done
}

// StartAsync suspends the current dispatch: when the handler returns, the
// channel parks instead of completing, and the worker goes back to the pool.
// A zero timeout applies the configured default; negative disables the
// deadline.
func (c *Channel) StartAsync(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.AsyncTimeout
	}
	return c.state.StartAsync(timeout, func() {
		if c.state.timeoutExpired() {
			c.schedule()
		}
	})
}

// AsyncResume re-dispatches a suspended exchange. Safe to call from any
// goroutine; the resume always runs on a pool worker, never inline.
func (c *Channel) AsyncResume() error {
	wake, err := c.state.AsyncDispatch()
	if err != nil {
		return err
	}
	if wake {
		c.schedule()
	}
	return nil
}

// AsyncComplete finishes a suspended exchange without another dispatch.
func (c *Channel) AsyncComplete() error {
	wake, err := c.state.AsyncComplete()
	if err != nil {
		return err
	}
	if wake {
		c.schedule()
	}
	return nil
}

// AsyncError fails a suspended exchange. The error is re-raised on a pool
// worker and routed through error-response synthesis.
func (c *Channel) AsyncError(failure error) error {
	wake, err := c.state.AsyncError(failure)
	if err != nil {
		return err
	}
	if wake {
		c.schedule()
	}
	return nil
}

// Abort gives up on the exchange, hard-closing the connection.
func (c *Channel) Abort(err error) {
	c.abort(err)
}

// Recycle resets the channel for the next exchange on the connection.
func (c *Channel) Recycle() {
	c.state.Recycle()
	c.input.recycle()
	c.output.recycle()
	c.response.recycle()
	c.request = nil
	c.requestID = ""
	c.written.Store(0)
	c.committedMeta.Store(nil)
	c.handled = false
}

// ---------------------------------------------------------------------------
// The handle loop.

// Handle drives the exchange until it terminates or suspends. It returns
// true when the exchange terminated.
func (c *Channel) Handle() bool {
	action, err := c.state.Handling()
	if err != nil {
		c.logger.Error(err, "cannot take over channel", "id", c.requestID)
		return false
	}
	for {
		c.logger.V(logging.TRACE).Info("handle", "id", c.requestID, "action", action, "state", c.state)
		switch action {
		case ActionTerminated:
			c.runGuarded("completion", c.onCompleted)
			return true

		case ActionWait:
			return false

		default:
			c.runAction(action)
		}

		action, err = c.state.Unhandle()
		if err != nil {
			c.logger.Error(err, "cannot advance channel", "id", c.requestID)
			return false
		}
	}
}

// runAction executes one action under a catch-all, so a panicking handler,
// transport, or recorder can never escape the loop and leave the channel
// stuck mid-handle. Recovered panics route through handleFailure like any
// other failure raised while handling.
func (c *Channel) runAction(action Action) {
	defer func() {
		if r := recover(); r != nil {
			c.handleFailure(fmt.Errorf("action %s panic: %v", action, r))
		}
	}()
	switch action {
	case ActionNoop:
		// Nothing to do; ask again.

	case ActionDispatch:
		c.dispatch(false)

	case ActionAsyncDispatch:
		c.dispatch(true)

	case ActionAsyncTimeout:
		c.onAsyncTimeout()

	case ActionAsyncError:
		c.handleFailure(c.state.Failure())

	case ActionErrorDispatch:
		c.errorDispatch()

	case ActionReadRegister:
		if demander, ok := c.tr.(transport.ContentDemander); ok {
			demander.DemandContent()
		}

	case ActionReadProduce:
		if producer, ok := c.tr.(transport.ContentProducer); ok {
			producer.ProduceContent()
		}

	case ActionReadCallback:
		c.runGuarded("read callback", c.input.callback())

	case ActionWriteCallback:
		c.runGuarded("write callback", c.output.callback())

	case ActionComplete:
		c.complete()

	default:
		c.logger.Error(nil, "unknown action", "action", action)
		c.abort(fmt.Errorf("unknown action %v", action))
		c.state.Completed()
	}
}

func (c *Channel) dispatch(resume bool) {
	c.notifyBeforeDispatch()
	err := c.invokeHandler(resume)
	if err != nil {
		c.notifyDispatchFailure(err)
		c.handleFailure(err)
	}
	c.notifyAfterDispatch()
}

func (c *Channel) invokeHandler(resume bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if resume {
		if rh, ok := c.handler.(ResumeHandler); ok {
			return rh.OnAsyncResume(c)
		}
	}
	return c.handler.Handle(c)
}

// handleFailure routes a failure raised during handling. A committed
// response can no longer be replaced, so the connection is aborted; an
// uncommitted one is replaced by an error response on the next loop
// iteration.
func (c *Channel) handleFailure(err error) {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	if c.state.IsResponseCommitted() {
		c.logger.V(logging.DEBUG).Info("failure after commit, aborting",
			"id", c.requestID, "error", err.Error())
		c.abort(err)
		c.state.Completed()
		return
	}
	status := http.StatusInternalServerError
	reason := ""
	if bad, ok := transport.AsBadMessage(err); ok {
		status = bad.Code
		reason = bad.Reason
	}
	if !transport.IsQuiet(err) {
		c.logger.Error(err, "handling failed", "id", c.requestID, "status", status)
	}
	c.state.ThrownError(status, reason, err)
}

func (c *Channel) onAsyncTimeout() {
	if th, ok := c.handler.(TimeoutHandler); ok {
		c.runGuarded("timeout handler", func() { th.OnAsyncTimeout(c) })
	}
	c.state.afterTimeout()
}

func (c *Channel) errorDispatch() {
	status, reason, failure := c.state.ErrorInfo()
	if c.state.IsResponseCommitted() {
		if failure == nil {
			failure = fmt.Errorf("error dispatch after commit")
		}
		c.abort(failure)
		c.state.Completed()
		return
	}
	c.minimalErrorResponse(status, reason)
}

// minimalErrorResponse replaces the response under construction with a bare
// status line, no body.
func (c *Channel) minimalErrorResponse(status int, reason string) {
	c.response.recycle()
	c.output.Reopen()
	if err := c.response.SetStatus(status); err != nil {
		c.abort(err)
		c.state.Completed()
		return
	}
	if reason != "" {
		_ = c.response.SetReason(reason)
	}
	_ = c.response.SetContentLength(0)
	if err := c.output.Write(nil, true); err != nil {
		c.abort(err)
		c.state.Completed()
	}
}

// complete performs the final response checks: synthesize a 404 for
// exchanges that produced nothing, abort responses short of their declared
// length, and flush the final frame.
func (c *Channel) complete() {
	if !c.state.IsResponseCompleted() {
		if !c.state.IsResponseCommitted() && !c.handled &&
			c.written.Load() == 0 && !c.output.IsClosed() {
			if err := c.state.SendError(http.StatusNotFound, ""); err == nil {
				// The error dispatch runs next, then complete re-runs.
				return
			}
		}
		if meta := c.committedMeta.Load(); meta != nil &&
			meta.ContentLength != transport.ContentLengthUnknown &&
			c.written.Load() < meta.ContentLength && !c.isHead() {
			err := fmt.Errorf("%w: wrote %d of %d",
				errInsufficientContent, c.written.Load(), meta.ContentLength)
			c.abort(err)
			c.state.Completed()
			return
		}
		if err := c.output.Close(); err != nil {
			c.abort(err)
			c.state.Completed()
			return
		}
	}
	c.state.Completed()
}

func (c *Channel) onCompleted() {
	status := 0
	if meta := c.committedMeta.Load(); meta != nil {
		status = meta.Status
	}
	duration := time.Since(c.startTime)
	c.logger.V(logging.DEFAULT).Info("request complete",
		"id", c.requestID,
		"method", c.method(),
		"uri", c.uri(),
		"status", status,
		"bytes", c.written.Load(),
		"duration", duration)
	if c.recorder != nil {
		c.recorder.RequestCompleted(status, duration, c.written.Load())
	}
	c.notifyComplete()
	c.tr.OnCompleted()
}

// ---------------------------------------------------------------------------
// The response commit pipeline.

// write is the blocking write path used by Output and error synthesis. The
// first uncommitted write carries the frozen response snapshot.
func (c *Channel) write(content []byte, last bool) error {
	done := make(chan error, 1)
	cb := transport.NewCallback(func() { done <- nil }, func(err error) { done <- err })
	var meta *transport.ResponseMeta
	if !c.state.IsResponseCommitted() {
		meta = c.response.snapshot()
	}
	c.sendResponse(meta, c.isHead(), content, last, cb)
	return <-done
}

// sendResponse pushes one response frame to the transport. meta is non-nil
// exactly when the frame carries the response line and headers; the commit
// claim happens here and losers are failed with ErrCommitted. It returns
// whether the frame was handed to the transport.
func (c *Channel) sendResponse(meta *transport.ResponseMeta, head bool, content []byte, last bool, cb transport.Callback) bool {
	interim := meta.IsInterim()
	commit := meta != nil && !interim
	if meta != nil {
		if !c.state.CommitResponse() {
			cb.Failed(ErrCommitted)
			return false
		}
		if commit {
			c.committedMeta.Store(meta)
			c.notifyResponseBegin()
			c.logger.V(logging.VERBOSE).Info("response committed",
				"id", c.requestID, "status", meta.Status, "contentLength", meta.ContentLength)
			if c.recorder != nil {
				c.recorder.ResponseCommitted(meta.Status)
			}
		}
	}
	wrapped := &sendCallback{
		ch:      c,
		cb:      cb,
		content: content[:len(content):len(content)],
		commit:  commit,
		interim: interim,
		last:    last,
	}
	c.tr.Send(meta, head, content, last, wrapped)
	return true
}

// sendCallback completes the commit pipeline once the transport reports the
// frame's outcome: account written bytes, fire commit/content/end
// notifications, revert the interim claim, or abort on failure.
type sendCallback struct {
	ch      *Channel
	cb      transport.Callback
	content []byte
	commit  bool
	interim bool
	last    bool
}

func (s *sendCallback) Succeeded() {
	c := s.ch
	if s.interim {
		c.state.PartialResponse()
		s.cb.Succeeded()
		return
	}
	c.written.Add(int64(len(s.content)))
	if s.commit {
		c.notifyResponseCommit()
	}
	if len(s.content) > 0 {
		c.notifyResponseContent(s.content)
	}
	if s.last && c.state.CompleteResponse() {
		c.notifyResponseEnd()
	}
	s.cb.Succeeded()
}

func (s *sendCallback) Failed(err error) {
	s.ch.abort(err)
	s.cb.Failed(err)
}

// abort marks the response failed and hard-closes the connection, exactly
// once.
func (c *Channel) abort(err error) {
	if c.state.AbortResponse() {
		if !transport.IsQuiet(err) {
			c.logger.Error(err, "aborting exchange", "id", c.requestID)
		}
		c.notifyResponseFailure(err)
		// The abort may itself be answered by a broken transport; a panic
		// here must not unwind through the failure path that raised it.
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error(nil, "transport abort panicked", "id", c.requestID, "panic", r)
			}
		}()
		c.tr.Abort(err)
	}
}

// schedule hands the channel to a worker, preferring the reserved set so a
// resumption never waits behind the general queue. Resumptions never run
// inline on the goroutine that produced the wake event.
func (c *Channel) schedule() {
	if c.executor.TryExecute(c) {
		return
	}
	if err := c.executor.Submit(c); err != nil {
		c.logger.Error(err, "cannot schedule resumption", "id", c.requestID)
		c.abort(err)
	}
}

func (c *Channel) runGuarded(what string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.handleFailure(fmt.Errorf("%s panic: %v", what, r))
		}
	}()
	fn()
}

func (c *Channel) isHead() bool { return c.request.IsHead() }

func (c *Channel) method() string {
	if c.request == nil {
		return ""
	}
	return c.request.Method
}

func (c *Channel) uri() string {
	if c.request == nil {
		return ""
	}
	return c.request.URI
}

// ---------------------------------------------------------------------------
// Listener fan-out. Every callback is isolated: a panicking listener is
// logged and the remaining listeners still run.

func (c *Channel) notifyEach(fn func(Listener)) {
	for _, l := range c.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("listener panic: %v", r),
						"listener callback failed", "id", c.requestID)
				}
			}()
			fn(l)
		}()
	}
}

func (c *Channel) notifyRequestBegin() {
	c.notifyEach(func(l Listener) { l.OnRequestBegin(c) })
}

func (c *Channel) notifyBeforeDispatch() {
	c.notifyEach(func(l Listener) { l.OnBeforeDispatch(c) })
}

func (c *Channel) notifyDispatchFailure(err error) {
	c.notifyEach(func(l Listener) { l.OnDispatchFailure(c, err) })
}

func (c *Channel) notifyAfterDispatch() {
	c.notifyEach(func(l Listener) { l.OnAfterDispatch(c) })
}

func (c *Channel) notifyRequestContent(content []byte) {
	c.notifyEach(func(l Listener) { l.OnRequestContent(c, content) })
}

func (c *Channel) notifyRequestContentEnd() {
	c.notifyEach(func(l Listener) { l.OnRequestContentEnd(c) })
}

func (c *Channel) notifyRequestTrailers(trailers transport.Fields) {
	c.notifyEach(func(l Listener) { l.OnRequestTrailers(c, trailers) })
}

func (c *Channel) notifyRequestEnd() {
	c.notifyEach(func(l Listener) { l.OnRequestEnd(c) })
}

func (c *Channel) notifyRequestFailure(err error) {
	c.notifyEach(func(l Listener) { l.OnRequestFailure(c, err) })
}

func (c *Channel) notifyResponseBegin() {
	c.notifyEach(func(l Listener) { l.OnResponseBegin(c) })
}

func (c *Channel) notifyResponseCommit() {
	c.notifyEach(func(l Listener) { l.OnResponseCommit(c) })
}

func (c *Channel) notifyResponseContent(content []byte) {
	c.notifyEach(func(l Listener) { l.OnResponseContent(c, content) })
}

func (c *Channel) notifyResponseEnd() {
	c.notifyEach(func(l Listener) { l.OnResponseEnd(c) })
}

func (c *Channel) notifyResponseFailure(err error) {
	c.notifyEach(func(l Listener) { l.OnResponseFailure(c, err) })
}

func (c *Channel) notifyComplete() {
	c.notifyEach(func(l Listener) { l.OnComplete(c) })
}

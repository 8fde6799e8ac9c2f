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
	"fmt"
	"net/http"
	"sync"
	"time"
)

// phase is the handling lifecycle of a channel. Entering phaseHandling is a
// guarded transition from phaseIdle or phaseWoken; this is what guarantees at
// most one goroutine ever drives a channel.
type phase int8

const (
	// phaseIdle: no goroutine is handling the channel.
	phaseIdle phase = iota
	// phaseHandling: exactly one goroutine is inside the handle loop.
	phaseHandling
	// phaseWaiting: suspended in an async wait; no driving goroutine.
	phaseWaiting
	// phaseWoken: an event arrived while waiting; a driver is being
	// scheduled but has not yet entered the handle loop.
	phaseWoken
	// phaseCompleted: the exchange is finished; only Recycle may follow.
	phaseCompleted
)

var phaseNames = map[phase]string{
	phaseIdle:      "IDLE",
	phaseHandling:  "HANDLING",
	phaseWaiting:   "WAITING",
	phaseWoken:     "WOKEN",
	phaseCompleted: "COMPLETED",
}

func (p phase) String() string { return phaseNames[p] }

// asyncState tracks the application's async decision within a suspension
// cycle.
type asyncState int8

const (
	// asyncNone: the request is being handled synchronously.
	asyncNone asyncState = iota
	// asyncStarted: StartAsync was called; no decision yet.
	asyncStarted
	// asyncDispatch: a resume was requested.
	asyncDispatch
	// asyncExpiring: the deadline fired; the timeout decision is pending.
	asyncExpiring
	// asyncErrored: a failure was recorded to be re-raised by the driver.
	asyncErrored
	// asyncCompleting: AsyncComplete was called.
	asyncCompleting
)

var asyncNames = map[asyncState]string{
	asyncNone:       "NONE",
	asyncStarted:    "STARTED",
	asyncDispatch:   "DISPATCH",
	asyncExpiring:   "EXPIRING",
	asyncErrored:    "ERRORED",
	asyncCompleting: "COMPLETING",
}

func (a asyncState) String() string { return asyncNames[a] }

// State is the per-channel finite-state machine. It computes the next Action
// the channel must perform and provides the mutual exclusion that keeps a
// single goroutine driving the exchange: events that arrive while another
// goroutine is handling only record intent, to be observed on that
// goroutine's next loop iteration.
type State struct {
	mu sync.Mutex

	phase phase
	async asyncState

	// sendError marks a pending error dispatch with the recorded status.
	sendError   bool
	errorStatus int
	errorReason string
	failure     error

	// Async read plumbing.
	readInterested   bool
	readRegistered   bool
	readPossible     bool
	produceAttempted bool
	producible       bool

	writePossible bool

	// Response side.
	committed         bool
	aborted           bool
	responseCompleted bool

	completing bool
	completed  bool

	timer *time.Timer
}

// NewState returns a state machine in its idle phase. producible marks
// whether the transport can produce buffered content on demand, which
// enables the READ_PRODUCE action.
func NewState(producible bool) *State {
	return &State{phase: phaseIdle, producible: producible}
}

func (s *State) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("s=%s a=%s c=%t/%t err=%t", s.phase, s.async, s.committed, s.responseCompleted, s.sendError)
}

// Handling claims the channel for the calling goroutine and returns the first
// Action to execute. It fails if another goroutine already holds the channel.
func (s *State) Handling() (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case phaseIdle:
		s.phase = phaseHandling
		return ActionDispatch, nil
	case phaseWoken:
		s.phase = phaseHandling
		return s.nextActionLocked(), nil
	default:
		return ActionWait, fmt.Errorf("cannot handle in phase %s", s.phase)
	}
}

// Unhandle is called after each Action has been performed and returns the
// next one. ActionWait releases the channel: the calling goroutine must exit
// the handle loop and let a future event re-arm the state.
func (s *State) Unhandle() (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseHandling {
		return ActionWait, fmt.Errorf("cannot unhandle in phase %s", s.phase)
	}
	action := s.nextActionLocked()
	switch action {
	case ActionWait:
		s.phase = phaseWaiting
	case ActionTerminated:
		s.phase = phaseCompleted
	}
	return action, nil
}

// nextActionLocked computes the next Action for the driving goroutine. The
// ordering encodes precedence: completion, then pending errors, then the
// async decision, then I/O callbacks.
func (s *State) nextActionLocked() Action {
	if s.completed {
		return ActionTerminated
	}
	if s.sendError {
		s.sendError = false
		return ActionErrorDispatch
	}

	switch s.async {
	case asyncErrored:
		s.async = asyncNone
		return ActionAsyncError

	case asyncExpiring:
		return ActionAsyncTimeout

	case asyncDispatch:
		s.async = asyncNone
		return ActionAsyncDispatch

	case asyncCompleting:
		s.async = asyncNone
		s.completing = true
		return ActionComplete

	case asyncStarted:
		if s.readInterested && s.readPossible {
			s.readInterested = false
			s.readPossible = false
			s.readRegistered = false
			s.produceAttempted = false
			return ActionReadCallback
		}
		if s.writePossible {
			s.writePossible = false
			return ActionWriteCallback
		}
		if s.readInterested && !s.readRegistered {
			if s.producible && !s.produceAttempted {
				s.produceAttempted = true
				return ActionReadProduce
			}
			s.readRegistered = true
			return ActionReadRegister
		}
		return ActionWait

	default: // asyncNone
		if !s.completing {
			s.completing = true
			return ActionComplete
		}
		// COMPLETE ran but was diverted (e.g. it issued a sendError that has
		// since been dispatched); run it again.
		return ActionComplete
	}
}

// StartAsync suspends the current dispatch. Must be called by the driving
// goroutine, from within a dispatch. A positive timeout arms the deadline;
// onExpired runs on the timer goroutine and is expected to call
// timeoutExpired via the channel.
func (s *State) StartAsync(timeout time.Duration, onExpired func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseHandling || s.async != asyncNone {
		return fmt.Errorf("cannot start async (phase %s, async %s)", s.phase, s.async)
	}
	s.async = asyncStarted
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, onExpired)
	}
	return nil
}

// AsyncDispatch requests a resume. It may be called from any goroutine; the
// returned flag is true when the caller must schedule a new driver (the
// channel was parked in its async wait).
func (s *State) AsyncDispatch() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.async != asyncStarted && s.async != asyncExpiring {
		return false, fmt.Errorf("%w: async state %s", ErrNotSuspended, s.async)
	}
	s.async = asyncDispatch
	s.cancelTimerLocked()
	return s.wakeupLocked(), nil
}

// AsyncComplete requests completion without a further dispatch.
func (s *State) AsyncComplete() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.async != asyncStarted && s.async != asyncExpiring {
		return false, fmt.Errorf("%w: async state %s", ErrNotSuspended, s.async)
	}
	s.async = asyncCompleting
	s.cancelTimerLocked()
	return s.wakeupLocked(), nil
}

// AsyncError records a failure to be re-raised on the driving goroutine.
func (s *State) AsyncError(err error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.async != asyncStarted && s.async != asyncExpiring {
		return false, fmt.Errorf("%w: async state %s", ErrNotSuspended, s.async)
	}
	s.async = asyncErrored
	s.failure = err
	s.cancelTimerLocked()
	return s.wakeupLocked(), nil
}

// timeoutExpired merges the deadline firing into the state machine exactly
// like any other external event. The returned flag asks the caller to
// schedule a driver.
func (s *State) timeoutExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.async != asyncStarted {
		return false
	}
	s.async = asyncExpiring
	return s.wakeupLocked()
}

// afterTimeout is called once the application's timeout handler has run. If
// the handler made no decision the wait is converted into an error dispatch.
func (s *State) afterTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.async == asyncExpiring {
		s.async = asyncErrored
		s.failure = ErrAsyncTimeout
	}
}

// ThrownError converts a failure raised during handling into a pending error
// dispatch. The caller must already have checked that the response is not
// committed.
func (s *State) ThrownError(status int, reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendError = true
	s.errorStatus = status
	s.errorReason = reason
	s.failure = err
	// An error dispatch supersedes whatever async cycle was in flight.
	s.async = asyncNone
	s.completing = false
	s.cancelTimerLocked()
}

// SendError records an application-requested error response.
func (s *State) SendError(status int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return ErrCommitted
	}
	s.sendError = true
	s.errorStatus = status
	s.errorReason = reason
	s.completing = false
	return nil
}

// ErrorInfo returns the status, reason and failure recorded for the pending
// or most recent error dispatch.
func (s *State) ErrorInfo() (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.errorStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, s.errorReason, s.failure
}

// Failure returns the recorded failure, if any.
func (s *State) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// OnReadUnready records that the application is waiting for content.
func (s *State) OnReadUnready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readInterested = true
}

// OnContentAdded records that content is available, waking a parked channel
// whose application registered read interest.
func (s *State) OnContentAdded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readPossible = true
	s.readRegistered = false
	s.produceAttempted = false
	if s.readInterested {
		return s.wakeupLocked()
	}
	return false
}

// OnWritePossible records completion of an async write, waking a parked
// channel so its write callback runs on a driving goroutine.
func (s *State) OnWritePossible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writePossible = true
	return s.wakeupLocked()
}

// wakeupLocked converts a parked channel into a woken one. It returns true
// when the caller must schedule a driver; while another goroutine is
// handling, intent has already been recorded and nothing is scheduled.
func (s *State) wakeupLocked() bool {
	if s.phase == phaseWaiting {
		s.phase = phaseWoken
		return true
	}
	return false
}

// CommitResponse claims the exactly-once commit.
func (s *State) CommitResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed || s.aborted {
		return false
	}
	s.committed = true
	return true
}

// PartialResponse reverts a claim made for an interim (1xx) response, which
// never commits the exchange.
func (s *State) PartialResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.committed || s.aborted {
		return false
	}
	s.committed = false
	return true
}

// AbortResponse marks the response aborted, returning true only for the
// first caller.
func (s *State) AbortResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return false
	}
	s.aborted = true
	return true
}

// CompleteResponse marks the response fully written, returning true only for
// the first caller.
func (s *State) CompleteResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responseCompleted {
		return false
	}
	s.responseCompleted = true
	return true
}

// Completed marks the request side of the exchange finished. The driving
// goroutine observes ActionTerminated on its next Unhandle.
func (s *State) Completed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.cancelTimerLocked()
}

// IsIdle reports whether no goroutine is driving and no request is in
// flight.
func (s *State) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseIdle
}

// IsSuspended reports whether the channel is parked in an async wait.
func (s *State) IsSuspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseWaiting
}

// IsResponseCommitted reports whether the response line and headers are
// frozen.
func (s *State) IsResponseCommitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// IsResponseCompleted reports whether the response has been fully written.
func (s *State) IsResponseCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseCompleted
}

// IsCompleted reports whether the request lifecycle has finished.
func (s *State) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// IsSendError reports whether an error dispatch is pending.
func (s *State) IsSendError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendError
}

// Recycle resets the state for the next request on the connection. It panics
// if the previous exchange has not terminated; reusing a live channel is a
// programming error that must not be absorbed.
func (s *State) Recycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseCompleted && s.phase != phaseIdle {
		panic(fmt.Sprintf("recycle in phase %s", s.phase))
	}
	s.cancelTimerLocked()
	s.phase = phaseIdle
	s.async = asyncNone
	s.sendError = false
	s.errorStatus = 0
	s.errorReason = ""
	s.failure = nil
	s.readInterested = false
	s.readRegistered = false
	s.readPossible = false
	s.produceAttempted = false
	s.writePossible = false
	s.committed = false
	s.aborted = false
	s.responseCompleted = false
	s.completing = false
	s.completed = false
}

func (s *State) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

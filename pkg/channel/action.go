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

// Action is the next operation a channel must perform, computed by its state
// machine. Actions carry no payload; everything needed to act on one lives on
// the Channel.
type Action int8

const (
	// ActionTerminated ends the handle loop after completion.
	ActionTerminated Action = iota
	// ActionWait exits the handle loop leaving the channel suspended; a
	// future event re-arms the state machine.
	ActionWait
	// ActionNoop performs nothing and asks the state machine again.
	ActionNoop
	// ActionDispatch invokes the application entry point for a fresh request.
	ActionDispatch
	// ActionAsyncDispatch re-invokes the application after an async resume.
	ActionAsyncDispatch
	// ActionAsyncTimeout runs the async timeout decision.
	ActionAsyncTimeout
	// ActionErrorDispatch produces an error response for a recorded failure.
	ActionErrorDispatch
	// ActionAsyncError re-raises a failure reported by AsyncError.
	ActionAsyncError
	// ActionReadRegister registers read interest with the transport.
	ActionReadRegister
	// ActionReadProduce asks the transport to produce buffered content.
	ActionReadProduce
	// ActionReadCallback runs the application's read callback.
	ActionReadCallback
	// ActionWriteCallback runs the application's write callback.
	ActionWriteCallback
	// ActionComplete performs the final response checks and closes output.
	ActionComplete
)

var actionNames = map[Action]string{
	ActionTerminated:    "TERMINATED",
	ActionWait:          "WAIT",
	ActionNoop:          "NOOP",
	ActionDispatch:      "DISPATCH",
	ActionAsyncDispatch: "ASYNC_DISPATCH",
	ActionAsyncTimeout:  "ASYNC_TIMEOUT",
	ActionErrorDispatch: "ERROR_DISPATCH",
	ActionAsyncError:    "ASYNC_ERROR",
	ActionReadRegister:  "READ_REGISTER",
	ActionReadProduce:   "READ_PRODUCE",
	ActionReadCallback:  "READ_CALLBACK",
	ActionWriteCallback: "WRITE_CALLBACK",
	ActionComplete:      "COMPLETE",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

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

package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// BadMessageError reports malformed input detected before dispatch. It is
// routed straight to error-response synthesis and never reaches the
// application.
type BadMessageError struct {
	Code   int
	Reason string
	Err    error
}

func (e *BadMessageError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = http.StatusText(e.Code)
	}
	return fmt.Sprintf("bad message %d: %s", e.Code, reason)
}

func (e *BadMessageError) Unwrap() error { return e.Err }

// NewBadMessageError builds a BadMessageError, normalizing out-of-range
// status codes to 400.
func NewBadMessageError(code int, reason string) *BadMessageError {
	if code < 400 || code > 599 {
		return &BadMessageError{Code: http.StatusBadRequest, Reason: reason}
	}
	return &BadMessageError{Code: code, Reason: reason}
}

// AsBadMessage unwraps err looking for a BadMessageError.
func AsBadMessage(err error) (*BadMessageError, bool) {
	var bad *BadMessageError
	if errors.As(err, &bad) {
		return bad, true
	}
	return nil, false
}

// QuietError wraps expected connection noise (resets, early closes) that
// should be logged without a stack trace.
type QuietError struct {
	Err error
}

func (e *QuietError) Error() string { return e.Err.Error() }

func (e *QuietError) Unwrap() error { return e.Err }

// IsQuiet reports whether err is wrapped as quiet.
func IsQuiet(err error) bool {
	var quiet *QuietError
	return errors.As(err, &quiet)
}

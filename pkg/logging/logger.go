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

package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log verbosity levels used throughout keel. Messages at DEFAULT are emitted
// in normal operation; the higher levels trace per-request and per-action
// detail and are only enabled when debugging.
const (
	DEFAULT = 1
	VERBOSE = 2
	DEBUG   = 3
	TRACE   = 4
)

// NewLogger creates a production zap-backed logger with the given verbosity.
// A verbosity of v enables logr V-levels up to and including v.
func NewLogger(verbosity int) logr.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity)) //nolint:gosec // verbosity is a small constant
	zl, err := cfg.Build()
	if err != nil {
		// The production config cannot fail to build; fall back to a no-op
		// logger rather than panicking inside logging setup.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewTestLogger creates a development-mode logger that emits every level,
// for use in tests.
func NewTestLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

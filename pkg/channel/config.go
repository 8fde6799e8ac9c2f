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
	"time"

	"github.com/go-logr/logr"

	"github.com/keelhttp/keel/pkg/util/env"
)

const (
	// DefaultAsyncTimeout bounds an async wait when StartAsync is called
	// without an explicit deadline.
	DefaultAsyncTimeout = 30 * time.Second

	// EnvAsyncTimeout overrides DefaultAsyncTimeout.
	EnvAsyncTimeout = "KEEL_CHANNEL_ASYNC_TIMEOUT"
)

// Config carries per-channel tunables.
type Config struct {
	// AsyncTimeout is the deadline applied to async waits whose StartAsync
	// call did not supply one. Zero or negative disables the default
	// deadline.
	AsyncTimeout time.Duration
}

// DefaultConfig returns the built-in channel configuration.
func DefaultConfig() Config {
	return Config{AsyncTimeout: DefaultAsyncTimeout}
}

// ConfigFromEnv builds a Config from environment variables, falling back to
// the defaults.
func ConfigFromEnv(logger logr.Logger) Config {
	return Config{
		AsyncTimeout: env.GetEnvDuration(EnvAsyncTimeout, DefaultAsyncTimeout, logger),
	}
}

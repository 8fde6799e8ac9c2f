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

package pool

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/keelhttp/keel/pkg/util/env"
)

// Default configuration values.
const (
	// DefaultMaxWorkers is the default upper bound on pool workers.
	DefaultMaxWorkers = 200
	// DefaultMinWorkers is the default lower bound on pool workers, capped at
	// MaxWorkers.
	DefaultMinWorkers = 8
	// DefaultIdleTimeout is how long a worker may sit idle before it becomes a
	// candidate for shrinking.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultStopTimeout bounds the total time Stop spends waiting for
	// workers: half for natural drain, half after interrupting idle waiters.
	DefaultStopTimeout = 5 * time.Second
	// DefaultLowWorkersThreshold is the margin at or below which the pool
	// reports itself low on workers.
	DefaultLowWorkersThreshold = 1
)

// Environment variable names recognized by ConfigFromEnv.
const (
	EnvMaxWorkers  = "KEEL_POOL_MAX_WORKERS"
	EnvMinWorkers  = "KEEL_POOL_MIN_WORKERS"
	EnvIdleTimeout = "KEEL_POOL_IDLE_TIMEOUT"
	EnvStopTimeout = "KEEL_POOL_STOP_TIMEOUT"
)

// Config holds the sizing and shutdown parameters of a Pool.
type Config struct {
	// MaxWorkers is the maximum number of workers. Must be >= 1.
	MaxWorkers int
	// MinWorkers is the number of workers kept alive even when idle.
	MinWorkers int
	// IdleTimeout is how long a worker waits for a job before considering
	// shrinking. Zero or negative disables shrinking.
	IdleTimeout time.Duration
	// ReservedWorkers is the number of workers held for TryExecute handoff.
	// Zero disables the reserved executor; negative selects a heuristic of
	// max(1, min(GOMAXPROCS, MaxWorkers/10)).
	ReservedWorkers int
	// QueueCapacity bounds the job queue. Zero selects
	// max(MinWorkers, 8) * 1024.
	QueueCapacity int
	// StopTimeout bounds how long Stop waits for workers to exit.
	StopTimeout time.Duration
	// LowWorkersThreshold is the low-on-workers margin threshold, compared
	// against MaxWorkers - Workers + IdleWorkers - QueueSize.
	LowWorkersThreshold int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:          DefaultMaxWorkers,
		MinWorkers:          DefaultMinWorkers,
		IdleTimeout:         DefaultIdleTimeout,
		ReservedWorkers:     -1,
		StopTimeout:         DefaultStopTimeout,
		LowWorkersThreshold: DefaultLowWorkersThreshold,
	}
}

// ConfigFromEnv returns the default configuration with operational overrides
// read from the environment.
func ConfigFromEnv(logger logr.Logger) Config {
	cfg := DefaultConfig()
	cfg.MaxWorkers = env.GetEnvInt(EnvMaxWorkers, cfg.MaxWorkers, logger)
	cfg.MinWorkers = env.GetEnvInt(EnvMinWorkers, cfg.MinWorkers, logger)
	cfg.IdleTimeout = env.GetEnvDuration(EnvIdleTimeout, cfg.IdleTimeout, logger)
	cfg.StopTimeout = env.GetEnvDuration(EnvStopTimeout, cfg.StopTimeout, logger)
	return cfg
}

func (c *Config) validateAndDefault() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers)
	}
	if c.MinWorkers < 0 {
		return fmt.Errorf("min workers must not be negative, got %d", c.MinWorkers)
	}
	if c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("min workers (%d) greater than max workers (%d)", c.MinWorkers, c.MaxWorkers)
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = max(c.MinWorkers, 8) * 1024
	}
	if c.LowWorkersThreshold == 0 {
		c.LowWorkersThreshold = DefaultLowWorkersThreshold
	}
	return nil
}

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

// Package runner wires the worker pool, channels, metrics, and a loopback
// traffic generator into the keel demo binary.
package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/keelhttp/keel/pkg/channel"
	"github.com/keelhttp/keel/pkg/logging"
	"github.com/keelhttp/keel/pkg/metrics"
	"github.com/keelhttp/keel/pkg/metrics/collectors"
	"github.com/keelhttp/keel/pkg/pool"
	"github.com/keelhttp/keel/version"
)

var (
	metricsPort = flag.Int(
		"metrics-port",
		9090,
		"The port serving /metrics and /healthz")
	logVerbosity = flag.Int(
		"v",
		logging.DEFAULT,
		"number for the log level verbosity")
	requestCount = flag.Int(
		"requests",
		100,
		"Number of loopback demo requests to drive through the engine")
	requestInterval = flag.Duration(
		"request-interval",
		10*time.Millisecond,
		"Delay between loopback demo requests")
)

// Runner builds and runs the demo engine.
type Runner struct{}

// NewRunner returns a runner with the default wiring.
func NewRunner() *Runner { return &Runner{} }

// Run starts the pool, the metrics endpoint, and the loopback traffic
// generator, and blocks until the context is cancelled or the traffic run
// finishes.
func (r *Runner) Run(ctx context.Context) error {
	flag.Parse()

	logger := logging.NewLogger(*logVerbosity)
	ctx = logr.NewContext(ctx, logger)
	logger.Info("starting keel", "commit", version.CommitSHA, "build", version.BuildRef)

	poolCfg := pool.ConfigFromEnv(logger)
	workers, err := pool.New(poolCfg, logger)
	if err != nil {
		logger.Error(err, "invalid pool configuration")
		return err
	}
	if err := workers.Start(); err != nil {
		logger.Error(err, "failed to start worker pool")
		return err
	}
	defer func() {
		if err := workers.Stop(); err != nil {
			logger.Error(err, "worker pool stop reported failures")
		}
	}()

	metrics.Register(nil)
	if err := prometheus.Register(collectors.NewPoolCollector(workers)); err != nil {
		logger.Error(err, "failed to register pool collector")
		return err
	}

	chanCfg := channel.ConfigFromEnv(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.serveMetrics(ctx, logger)
	})
	g.Go(func() error {
		defer logger.Info("traffic run finished")
		return r.runTraffic(ctx, logger, workers, chanCfg)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (r *Runner) serveMetrics(ctx context.Context, logger logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *metricsPort),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "metrics server shutdown failed")
		}
	}()
	logger.Info("serving metrics", "port", *metricsPort)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

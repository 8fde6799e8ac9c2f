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

// Package metrics exposes Prometheus metrics for the request lifecycle
// engine.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keelhttp/keel/pkg/channel"
)

const component = "keel"

var (
	requestsStartedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "requests_started_total",
			Help:      "Count of requests that began an exchange.",
		},
		[]string{},
	)
	requestsCompletedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "requests_completed_total",
			Help:      "Count of completed exchanges by response status class.",
		},
		[]string{"status_class"},
	)
	responsesCommittedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "responses_committed_total",
			Help:      "Count of committed responses by status class.",
		},
		[]string{"status_class"},
	)
	responseBytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "response_bytes_total",
			Help:      "Total response content bytes accepted by transports.",
		},
		[]string{},
	)
	requestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: component,
			Name:      "request_duration_seconds",
			Help:      "Exchange duration from request arrival to completion.",
			Buckets: []float64{
				0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
				0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
			},
		},
		[]string{},
	)
)

var registerMetrics sync.Once

// Register all metrics with the given registerer, defaulting to the global
// one.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(requestsStartedCounter)
		reg.MustRegister(requestsCompletedCounter)
		reg.MustRegister(responsesCommittedCounter)
		reg.MustRegister(responseBytesCounter)
		reg.MustRegister(requestDurationHistogram)
	})
}

// statusClass folds a status code into its class label. Zero means the
// exchange never committed a response.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return fmt.Sprintf("%dxx", status/100)
}

// Recorder adapts the registered metrics to the channel.Recorder interface.
type Recorder struct{}

var _ channel.Recorder = Recorder{}

// NewRecorder returns a recorder writing to the registered metrics.
func NewRecorder() Recorder { return Recorder{} }

// RequestStarted counts an arriving request.
func (Recorder) RequestStarted() {
	requestsStartedCounter.WithLabelValues().Inc()
}

// ResponseCommitted counts a committed response.
func (Recorder) ResponseCommitted(status int) {
	responsesCommittedCounter.WithLabelValues(statusClass(status)).Inc()
}

// RequestCompleted counts a finished exchange with its outcome.
func (Recorder) RequestCompleted(status int, duration time.Duration, bytesWritten int64) {
	requestsCompletedCounter.WithLabelValues(statusClass(status)).Inc()
	responseBytesCounter.WithLabelValues().Add(float64(bytesWritten))
	requestDurationHistogram.WithLabelValues().Observe(duration.Seconds())
}

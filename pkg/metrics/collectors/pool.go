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

package collectors

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keelhttp/keel/pkg/pool"
)

var (
	descPoolWorkers = prometheus.NewDesc(
		"keel_pool_workers",
		"Current number of pool workers, idle and busy.",
		nil, nil,
	)
	descPoolIdleWorkers = prometheus.NewDesc(
		"keel_pool_idle_workers",
		"Current number of idle pool workers.",
		nil, nil,
	)
	descPoolBusyWorkers = prometheus.NewDesc(
		"keel_pool_busy_workers",
		"Current number of pool workers running a job.",
		nil, nil,
	)
	descPoolQueueSize = prometheus.NewDesc(
		"keel_pool_queue_size",
		"Current number of jobs waiting in the pool queue.",
		nil, nil,
	)
	descPoolReservedWorkers = prometheus.NewDesc(
		"keel_pool_reserved_workers",
		"Current number of workers parked in the reserved set.",
		nil, nil,
	)
	descPoolLowMargin = prometheus.NewDesc(
		"keel_pool_low_workers_margin",
		"Remaining dispatch capacity before the pool is considered low on workers. Negative when oversubscribed.",
		nil, nil,
	)
	descPoolIsLow = prometheus.NewDesc(
		"keel_pool_low_on_workers",
		"Whether the pool is low on workers (1) or not (0).",
		nil, nil,
	)
)

type poolCollector struct {
	pool *pool.Pool
}

var _ prometheus.Collector = &poolCollector{}

// NewPoolCollector implements the prometheus.Collector interface over a
// worker pool's introspection counters.
func NewPoolCollector(p *pool.Pool) prometheus.Collector {
	return &poolCollector{pool: p}
}

// Describe implements the prometheus.Collector interface.
func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descPoolWorkers
	ch <- descPoolIdleWorkers
	ch <- descPoolBusyWorkers
	ch <- descPoolQueueSize
	ch <- descPoolReservedWorkers
	ch <- descPoolLowMargin
	ch <- descPoolIsLow
}

// Collect implements the prometheus.Collector interface.
func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		descPoolWorkers, prometheus.GaugeValue, float64(c.pool.Workers()))
	ch <- prometheus.MustNewConstMetric(
		descPoolIdleWorkers, prometheus.GaugeValue, float64(c.pool.IdleWorkers()))
	ch <- prometheus.MustNewConstMetric(
		descPoolBusyWorkers, prometheus.GaugeValue, float64(c.pool.BusyWorkers()))
	ch <- prometheus.MustNewConstMetric(
		descPoolQueueSize, prometheus.GaugeValue, float64(c.pool.QueueSize()))
	ch <- prometheus.MustNewConstMetric(
		descPoolReservedWorkers, prometheus.GaugeValue, float64(c.pool.AvailableReservedWorkers()))
	ch <- prometheus.MustNewConstMetric(
		descPoolLowMargin, prometheus.GaugeValue, float64(c.pool.LowWorkersMargin()))
	low := 0.0
	if c.pool.IsLowOnWorkers() {
		low = 1.0
	}
	ch <- prometheus.MustNewConstMetric(descPoolIsLow, prometheus.GaugeValue, low)
}

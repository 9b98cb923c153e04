/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package metrics exposes the two events the dispatcher emits: a
// per-request counter/timer pair and a heap-size gauge sampled once per
// Recheck.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "server_request_total",
		Help: "Count of requests processed by the dispatcher, by request kind.",
	}, []string{"request_kind"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "server_request_duration_seconds",
		Help:    "Dispatcher processing time per request, by request kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"request_kind"})

	sharedMemorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shared_memory_size_bytes",
		Help: "Current byte count held in the shared heap.",
	})
)

// ObserveRequest records one dispatcher pass for kind, taking the duration
// elapsed since started.
func ObserveRequest(kind string, started time.Time) {
	requestTotal.WithLabelValues(kind).Inc()
	requestDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// SetSharedMemorySize records the current heap byte count, emitted once per
// Recheck.
func SetSharedMemorySize(bytes int64) {
	sharedMemorySize.Set(float64(bytes))
}

// Copyright Acetone Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry provides the Prometheus metrics emitted at every
// observable point in §4.7: resolutions, cache hits/misses, registry
// calls, retries, and circuit breaker state. It implements
// cache.Recorder, resilience.Recorder and resolver.Recorder directly
// against prometheus.CounterVec/HistogramVec/GaugeVec so those packages
// never import Prometheus themselves.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acetone-proxy/acetone/internal/build"
	"github.com/acetone-proxy/acetone/internal/resilience"
)

const (
	BuildInfoGauge = "acetone_build_info"

	ResolutionsTotal          = "acetone_resolutions_total"
	ResolutionDurationSeconds = "acetone_resolution_duration_seconds"

	CacheHitsTotal   = "acetone_cache_hits_total"
	CacheMissesTotal = "acetone_cache_misses_total"

	RegistryCallsTotal          = "acetone_registry_calls_total"
	RegistryCallDurationSeconds = "acetone_registry_call_duration_seconds"

	RetryAttemptsTotal = "acetone_retry_attempts_total"
	CircuitState       = "acetone_circuit_state"
)

// Telemetry owns every metric collector and implements the Recorder
// interfaces cache, resilience and resolver each define.
type Telemetry struct {
	buildInfoGauge *prometheus.GaugeVec

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	registryCallsTotal   *prometheus.CounterVec
	registryCallDuration *prometheus.HistogramVec
	registryCallsStarted *prometheus.CounterVec

	retryAttemptsTotal *prometheus.CounterVec
	circuitState       *prometheus.GaugeVec
}

// New constructs a Telemetry and registers every collector with reg.
func New(reg *prometheus.Registry) *Telemetry {
	t := &Telemetry{
		buildInfoGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: BuildInfoGauge,
				Help: "Build information for acetoned. Labels include the branch and git SHA acetoned was built from, and its version.",
			},
			[]string{"branch", "revision", "version"},
		),
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ResolutionsTotal,
				Help: "Total number of identifier resolutions, by terminal status.",
			},
			[]string{"status"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ResolutionDurationSeconds,
				Help:    "Resolution latency in seconds, from identifier extraction to endpoint or terminal error.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"status"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: CacheHitsTotal,
				Help: "Total number of cache hits, by tier.",
			},
			[]string{"tier"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: CacheMissesTotal,
				Help: "Total number of cache misses, by tier.",
			},
			[]string{"tier"},
		),
		registryCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: RegistryCallsTotal,
				Help: "Total number of completed registry calls, by operation.",
			},
			[]string{"operation"},
		),
		registryCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    RegistryCallDurationSeconds,
				Help:    "Registry call latency in seconds, by operation.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"operation"},
		),
		registryCallsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acetone_registry_calls_started_total",
				Help: "Total number of registry calls started, by operation.",
			},
			[]string{"operation"},
		),
		retryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: RetryAttemptsTotal,
				Help: "Total number of retry attempts issued by the resilience pipeline, by operation.",
			},
			[]string{"operation"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: CircuitState,
				Help: "Current circuit breaker state by operation: 0=closed, 1=open, 2=half-open.",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		t.buildInfoGauge,
		t.resolutionsTotal,
		t.resolutionDuration,
		t.cacheHits,
		t.cacheMisses,
		t.registryCallsTotal,
		t.registryCallDuration,
		t.registryCallsStarted,
		t.retryAttemptsTotal,
		t.circuitState,
	)

	t.buildInfoGauge.WithLabelValues(build.Branch, build.Sha, build.Version).Set(1)

	return t
}

// Handler returns the /metrics exposition handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// --- cache.Recorder ------------------------------------------------------

func (t *Telemetry) CacheHit(tier string) {
	t.cacheHits.WithLabelValues(tier).Inc()
}

func (t *Telemetry) CacheMiss(tier string) {
	t.cacheMisses.WithLabelValues(tier).Inc()
}

// --- resilience.Recorder --------------------------------------------------

func (t *Telemetry) ExecutionStarted(operation string) {
	t.registryCallsStarted.WithLabelValues(operation).Inc()
}

func (t *Telemetry) ExecutionSucceeded(operation string, duration time.Duration) {
	t.registryCallsTotal.WithLabelValues(operation).Inc()
	t.registryCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (t *Telemetry) ExecutionFailed(operation string, duration time.Duration) {
	t.registryCallsTotal.WithLabelValues(operation).Inc()
	t.registryCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (t *Telemetry) RetryAttempted(operation string, _ int, _ float64) {
	t.retryAttemptsTotal.WithLabelValues(operation).Inc()
}

func (t *Telemetry) CallRejected(operation string) {
	t.registryCallsTotal.WithLabelValues(operation).Inc()
}

func (t *Telemetry) BreakerStateChanged(operation string, state resilience.State) {
	var v float64
	switch state {
	case resilience.Closed:
		v = 0
	case resilience.Open:
		v = 1
	case resilience.HalfOpen:
		v = 2
	}
	t.circuitState.WithLabelValues(operation).Set(v)
}

// --- resolver.Recorder -----------------------------------------------------

func (t *Telemetry) ResolutionCompleted(status string, duration time.Duration) {
	t.resolutionsTotal.WithLabelValues(status).Inc()
	t.resolutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

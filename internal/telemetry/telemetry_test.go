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

package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acetone-proxy/acetone/internal/resilience"
)

func TestCacheHitMissCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHit("application")
	m.CacheHit("application")
	m.CacheMiss("partition")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheHits.WithLabelValues("application")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheMisses.WithLabelValues("partition")))
}

func TestResolutionCompletedRecordsCountAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ResolutionCompleted("success", 12*time.Millisecond)
	m.ResolutionCompleted("application_not_found", 1*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolutionsTotal.WithLabelValues("application_not_found")))

	count := testutil.CollectAndCount(m.resolutionDuration)
	assert.Equal(t, 2, count)
}

func TestExecutionOutcomesRecordCountAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ExecutionStarted("ListApplications")
	m.ExecutionSucceeded("ListApplications", 5*time.Millisecond)
	m.ExecutionFailed("ListApplications", 2*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.registryCallsStarted.WithLabelValues("ListApplications")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.registryCallsTotal.WithLabelValues("ListApplications")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.registryCallDuration))
}

func TestBreakerStateChangedSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BreakerStateChanged("ResolvePartition", resilience.Open)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.circuitState.WithLabelValues("ResolvePartition")))

	m.BreakerStateChanged("ResolvePartition", resilience.HalfOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.circuitState.WithLabelValues("ResolvePartition")))

	m.BreakerStateChanged("ResolvePartition", resilience.Closed)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.circuitState.WithLabelValues("ResolvePartition")))
}

func TestRetryAndRejectionCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RetryAttempted("ListServices", 2, 0.2)
	m.RetryAttempted("ListServices", 3, 0.4)
	m.CallRejected("ListServices")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.retryAttemptsTotal.WithLabelValues("ListServices")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.registryCallsTotal.WithLabelValues("ListServices")))
}

func TestBuildInfoGaugeSetOnConstruction(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == BuildInfoGauge {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, float64(1), f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "expected %s to be registered", BuildInfoGauge)
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheHit("application")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(reg).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), CacheHitsTotal)
}

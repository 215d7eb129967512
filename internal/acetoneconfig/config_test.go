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

package acetoneconfig

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesNoImplicitDefaults(t *testing.T) {
	doc := `
clusterEndpoints:
  - https://cluster-1:19080
  - https://cluster-2:19080
identifierLocation: FirstPathSegment
`
	conf, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cluster-1:19080", "https://cluster-2:19080"}, conf.ClusterEndpoints)
	assert.Equal(t, LocationFirstPathSegment, conf.IdentifierLocation)
	assert.Equal(t, 0, conf.Cache.PartitionCacheTTLSeconds)
}

func TestParseEmptyDocumentSucceeds(t *testing.T) {
	conf, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, conf.ClusterEndpoints)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("bogusField: true\n"))
	assert.Error(t, err)
}

func TestDefaultedFillsZeroValuesOnly(t *testing.T) {
	conf := Config{
		ClusterEndpoints: []string{"https://cluster-1:19080"},
		Resilience:       ResilienceParameters{RetryCount: 3},
	}
	out := conf.Defaulted()

	assert.Equal(t, []string{"https://cluster-1:19080"}, out.ClusterEndpoints)
	assert.Equal(t, 3, out.Resilience.RetryCount)
	assert.Equal(t, 2000, out.Resilience.MaxRetryDelayMs)
	assert.Equal(t, LocationSubdomain, out.IdentifierLocation)
	assert.Equal(t, 30, out.Cache.PartitionCacheTTLSeconds)
	assert.Equal(t, 100, out.MaxConcurrentRequests)
}

func TestDefaultedRespectsDisabledPartitionCache(t *testing.T) {
	conf := Config{Cache: CacheParameters{DisablePartitionCache: true}}
	out := conf.Defaulted()
	assert.Equal(t, 0, out.Cache.PartitionCacheTTLSeconds)
	assert.True(t, out.Cache.DisablePartitionCache)
}

func TestValidateRequiresClusterEndpoints(t *testing.T) {
	conf := Defaults().Defaulted()
	err := conf.Validate()
	assert.ErrorContains(t, err, "clusterEndpoints")
}

func TestValidateRejectsUnknownIdentifierLocation(t *testing.T) {
	conf := Defaults()
	conf.ClusterEndpoints = []string{"https://cluster-1:19080"}
	conf.IdentifierLocation = "SomewhereElse"
	err := conf.Validate()
	assert.ErrorContains(t, err, "IdentifierLocation")
}

func TestValidateRequiresCertFieldsForThumbprintMode(t *testing.T) {
	conf := Defaults()
	conf.ClusterEndpoints = []string{"https://cluster-1:19080"}
	conf.CredentialsMode = CredentialsByThumbprint
	err := conf.Validate()
	assert.ErrorContains(t, err, "clientCertPath")
}

func TestValidateAcceptsCompleteThumbprintConfig(t *testing.T) {
	conf := Defaults()
	conf.ClusterEndpoints = []string{"https://cluster-1:19080"}
	conf.CredentialsMode = CredentialsByThumbprint
	conf.Cert = CertParameters{
		ClientCertPath:       "/etc/acetone/client.pem",
		ClientKeyPath:        "/etc/acetone/client-key.pem",
		ClientCertThumbprint: "AABBCC",
	}
	assert.NoError(t, conf.Validate())
}

func TestValidateJoinsMultipleErrors(t *testing.T) {
	conf := Config{
		Resilience: ResilienceParameters{RetryCount: -1, MaxRetryDelayMs: -1},
	}
	err := conf.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "clusterEndpoints")
	assert.ErrorContains(t, err, "retryCount")
	assert.ErrorContains(t, err, "maxRetryDelayMs")
}

func TestResilienceParametersDurationHelpers(t *testing.T) {
	r := ResilienceParameters{
		InitialRetryDelayMs: 100,
		MaxRetryDelayMs:     2000,
		PerAttemptTimeoutMs: 5000,
		BreakDurationMs:     30000,
		SamplingDurationMs:  60000,
	}
	assert.Equal(t, 100*time.Millisecond, r.InitialRetryDelay())
	assert.Equal(t, 2*time.Second, r.MaxRetryDelay())
	assert.Equal(t, 5*time.Second, r.PerAttemptTimeout())
	assert.Equal(t, 30*time.Second, r.BreakDuration())
	assert.Equal(t, 60*time.Second, r.SamplingDuration())
}

func TestCacheParametersTTL(t *testing.T) {
	c := CacheParameters{PartitionCacheTTLSeconds: 45}
	assert.Equal(t, 45*time.Second, c.TTL())
}

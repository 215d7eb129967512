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

package cache

// Tier names used to tag hit/miss counters.
const (
	TierApplication = "application"
	TierService     = "service"
	TierPartition   = "partition"
)

// Recorder receives a hit or miss notification for every cache get
// operation, tagged by tier. internal/telemetry implements this against
// Prometheus counters; tests may use a no-op or counting stub.
type Recorder interface {
	CacheHit(tier string)
	CacheMiss(tier string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)  {}
func (nopRecorder) CacheMiss(string) {}

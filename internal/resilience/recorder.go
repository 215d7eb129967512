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

package resilience

import "time"

// Recorder receives the pipeline's observable events, tagged by the
// operation name passed to Execute (e.g. "ListApplications",
// "ResolvePartition"). internal/telemetry implements this against
// Prometheus counters, a histogram for call duration, and a gauge for
// breaker state. The duration passed to ExecutionSucceeded/ExecutionFailed
// is the wall time of the single attempt that produced the outcome, not
// the cumulative time across retries.
type Recorder interface {
	ExecutionStarted(operation string)
	ExecutionSucceeded(operation string, duration time.Duration)
	ExecutionFailed(operation string, duration time.Duration)
	RetryAttempted(operation string, attempt int, delay float64)
	CallRejected(operation string)
	BreakerStateChanged(operation string, state State)
}

type nopRecorder struct{}

func (nopRecorder) ExecutionStarted(string)                  {}
func (nopRecorder) ExecutionSucceeded(string, time.Duration) {}
func (nopRecorder) ExecutionFailed(string, time.Duration)    {}
func (nopRecorder) RetryAttempted(string, int, float64)      {}
func (nopRecorder) CallRejected(string)                      {}
func (nopRecorder) BreakerStateChanged(string, State)        {}

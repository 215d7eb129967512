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

import "errors"

// ErrTimeout is raised when a single attempt exceeds PerAttemptTimeout.
// It is retried by the pipeline like a transient fault.
var ErrTimeout = errors.New("resilience: per-attempt timeout exceeded")

// ErrCircuitOpen is returned immediately, without attempting the call,
// while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

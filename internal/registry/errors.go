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

package registry

import "errors"

// ErrTransient signals a registry fault expected to clear on its own
// (connection reset, 5xx from the naming service). The resilience
// pipeline retries it.
var ErrTransient = errors.New("registry: transient fault")

// ErrTimeout signals that a registry call did not complete within the
// caller's deadline. Distinct from resilience.ErrTimeout, which is
// raised by the pipeline's own per-attempt timeout; a Port
// implementation returns this when the underlying transport itself
// times out before the pipeline's timer does.
var ErrTimeout = errors.New("registry: call timed out")

// ErrPermanent signals a fault that will not clear on retry (bad
// request, authentication failure, malformed response). The resilience
// pipeline surfaces it immediately without retrying.
var ErrPermanent = errors.New("registry: permanent fault")

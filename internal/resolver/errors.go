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

package resolver

import "errors"

// ErrApplicationNotFound is returned when Step A's filtering rules
// leave no candidate Application.
var ErrApplicationNotFound = errors.New("resolver: application not found")

// ErrServiceNotFound is returned when Step B's kind/type-name filter
// matches no Service.
var ErrServiceNotFound = errors.New("resolver: service not found")

// ErrAmbiguousService is returned when Step B's filter matches more
// than one Service; this reflects a topology or naming-convention bug
// upstream, not a transient condition.
var ErrAmbiguousService = errors.New("resolver: ambiguous service")

// ErrMalformedEndpoint is returned when the endpoint extractor cannot
// make sense of the partition's advertised address.
var ErrMalformedEndpoint = errors.New("resolver: malformed endpoint")

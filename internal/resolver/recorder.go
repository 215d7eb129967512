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

import (
	"context"
	"errors"
	"time"

	"github.com/acetone-proxy/acetone/internal/registry"
	"github.com/acetone-proxy/acetone/internal/resilience"
)

// Recorder receives resolution outcomes. status is one of "success" or
// the sentinel error's short name ("application_not_found",
// "service_not_found", "ambiguous_service", "malformed_endpoint",
// "circuit_open", "timeout", "transient_fault", "permanent_fault",
// "canceled").
type Recorder interface {
	ResolutionCompleted(status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ResolutionCompleted(string, time.Duration) {}

func statusFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrApplicationNotFound):
		return "application_not_found"
	case errors.Is(err, ErrServiceNotFound):
		return "service_not_found"
	case errors.Is(err, ErrAmbiguousService):
		return "ambiguous_service"
	case errors.Is(err, ErrMalformedEndpoint):
		return "malformed_endpoint"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, registry.ErrTimeout):
		return "timeout"
	case errors.Is(err, registry.ErrTransient):
		return "transient_fault"
	case errors.Is(err, registry.ErrPermanent):
		return "permanent_fault"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "permanent_fault"
	}
}

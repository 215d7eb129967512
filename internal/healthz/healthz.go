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

// Package healthz implements the /health/live and /health/ready
// handlers. Liveness is unconditional: if the process can answer at
// all, it is live. Readiness defers to a Prober, which at minimum
// reports whether the Resolver has been closed and whether the
// registry answered its last probe.
package healthz

import "net/http"

// Prober is the subset of *resolver.Resolver the readiness handler
// depends on, narrowed so tests can substitute a stub.
type Prober interface {
	Ready() bool
}

// Live always answers 200 while the process is running.
func Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready answers 200 if p reports ready, 503 otherwise.
func Ready(p Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !p.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

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

// Package admission bounds the number of inbound requests processed
// concurrently. It sits in front of the routing middleware: once
// MaxConcurrentRequests requests are in flight, further requests are
// rejected with 503 rather than queued indefinitely, so a registry
// outage degrades to fast failure instead of unbounded memory growth.
package admission

import (
	"net/http"
	"strconv"

	"golang.org/x/sync/semaphore"
)

// Limiter wraps an http.Handler with a semaphore-backed concurrency
// cap.
type Limiter struct {
	next   http.Handler
	sem    *semaphore.Weighted
	retry  string
}

// New wraps next so that at most maxConcurrent requests are handled at
// once. retryAfterSeconds is advertised in the Retry-After header of a
// rejected request.
func New(next http.Handler, maxConcurrent int64, retryAfterSeconds int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Limiter{
		next:  next,
		sem:   semaphore.NewWeighted(maxConcurrent),
		retry: strconv.Itoa(retryAfterSeconds),
	}
}

func (l *Limiter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !l.sem.TryAcquire(1) {
		w.Header().Set("Retry-After", l.retry)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	defer l.sem.Release(1)
	l.next.ServeHTTP(w, r)
}

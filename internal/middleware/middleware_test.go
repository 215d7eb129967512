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

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acetone-proxy/acetone/internal/resolver"
	"github.com/acetone-proxy/acetone/internal/urlparser"
)

type stubResolver struct {
	endpoint string
	err      error
	gotID    string
}

func (s *stubResolver) ResolveEndpoint(_ context.Context, identifier, _, _ string, _ bool) (string, error) {
	s.gotID = identifier
	return s.endpoint, s.err
}

func TestServeHTTPForwardsToResolvedEndpoint(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-From-Backend", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer backend.Close()

	stub := &stubResolver{endpoint: backend.URL}
	h := New(stub, urlparser.Subdomain, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://guard.company.com/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body %q", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "/x" {
		t.Fatalf("got body %q", rec.Body.String())
	}
	if rec.Header().Get("X-From-Backend") != "yes" {
		t.Fatalf("expected backend response header to pass through")
	}
	if stub.gotID != "guard" {
		t.Fatalf("expected identifier 'guard', got %q", stub.gotID)
	}
	if rec.Header().Get(CorrelationIDHeader) == "" {
		t.Fatalf("expected a correlation id to be set")
	}
	if rec.Header().Get(VersionHeader) == "" {
		t.Fatalf("expected a version header to be set")
	}
}

func TestServeHTTPPreservesInboundCorrelationID(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	stub := &stubResolver{endpoint: backend.URL}
	h := New(stub, urlparser.Subdomain, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://guard.company.com/x", nil)
	req.Header.Set(CorrelationIDHeader, "caller-supplied-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(CorrelationIDHeader); got != "caller-supplied-id" {
		t.Fatalf("got %q", got)
	}
}

func TestServeHTTPMapsApplicationNotFoundTo404(t *testing.T) {
	stub := &stubResolver{err: resolver.ErrApplicationNotFound}
	h := New(stub, urlparser.Subdomain, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://missing.company.com/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestServeHTTPMapsAmbiguousServiceTo500(t *testing.T) {
	stub := &stubResolver{err: resolver.ErrAmbiguousService}
	h := New(stub, urlparser.Subdomain, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://guard.company.com/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestServeHTTPStripsSensitiveHeaders(t *testing.T) {
	var sawAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	stub := &stubResolver{endpoint: backend.URL}
	h := New(stub, urlparser.Subdomain, []string{"Authorization"}, nil)

	req := httptest.NewRequest(http.MethodGet, "http://guard.company.com/x", nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if sawAuth != "" {
		t.Fatalf("expected Authorization header to be stripped, backend saw %q", sawAuth)
	}
}

func TestServeHTTPBadIdentifierIs400(t *testing.T) {
	stub := &stubResolver{endpoint: "http://unused"}
	h := New(stub, urlparser.FirstPathSegment, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://api.company.com/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

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

// Package middleware wires the URL Parser and Resolver in front of a
// net/http/httputil.ReverseProxy: every inbound request is resolved to
// a backend endpoint and forwarded, with core resolution errors
// translated to the HTTP status table of §4.6.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/acetone-proxy/acetone/internal/build"
	"github.com/acetone-proxy/acetone/internal/registry"
	"github.com/acetone-proxy/acetone/internal/resilience"
	"github.com/acetone-proxy/acetone/internal/resolver"
	"github.com/acetone-proxy/acetone/internal/urlparser"
)

// CorrelationIDHeader carries a request's correlation id, initialized by
// the middleware if absent and preserved if present.
const CorrelationIDHeader = "X-Correlation-Id"

// VersionHeader reports the build version handling the request, or
// "unknown" when no version was stamped at build time.
const VersionHeader = "X-Acetone-Version"

type destinationKey struct{}

// Resolve is the subset of *resolver.Resolver the middleware depends
// on, narrowed so tests can substitute a stub.
type Resolve interface {
	ResolveEndpoint(ctx context.Context, identifier, invocationID, version string, refresh bool) (string, error)
}

// Handler implements http.Handler, resolving and forwarding every
// inbound request.
type Handler struct {
	Resolver Resolve
	Mode     urlparser.Mode

	// SensitiveHeaders are removed from the inbound request before it
	// is forwarded upstream.
	SensitiveHeaders []string

	Log logrus.FieldLogger

	proxy *httputil.ReverseProxy
}

// New builds a Handler backed by a single shared ReverseProxy whose
// Director reads the resolved destination out of the request context.
func New(res Resolve, mode urlparser.Mode, sensitiveHeaders []string, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{Resolver: res, Mode: mode, SensitiveHeaders: sensitiveHeaders, Log: log}
	h.proxy = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			dest, _ := req.Context().Value(destinationKey{}).(*url.URL)
			if dest == nil {
				return
			}
			req.URL.Scheme = dest.Scheme
			req.URL.Host = dest.Host
			req.Host = dest.Host
		},
		ErrorLog: nil,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get(CorrelationIDHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	r.Header.Set(CorrelationIDHeader, correlationID)
	w.Header().Set(CorrelationIDHeader, correlationID)
	version := build.Version
	if version == "" {
		version = "unknown"
	}
	w.Header().Set(VersionHeader, version)

	log := h.Log.WithField("correlationId", correlationID)

	identifier, err := urlparser.ExtractIdentifier(requestURL(r), h.Mode)
	if err != nil {
		log.WithError(err).Debug("failed to extract application identifier")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	endpoint, err := h.Resolver.ResolveEndpoint(r.Context(), identifier, correlationID, "", false)
	if err != nil {
		status := statusForError(err)
		log.WithError(err).WithField("identifier", identifier).WithField("status", status).Info("resolution failed")
		http.Error(w, http.StatusText(status), status)
		return
	}

	dest, err := url.Parse(endpoint)
	if err != nil {
		log.WithError(err).WithField("endpoint", endpoint).Error("resolver returned an unparseable endpoint")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	for _, name := range h.SensitiveHeaders {
		r.Header.Del(name)
	}

	ctx := context.WithValue(r.Context(), destinationKey{}, dest)
	h.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + strings.TrimSuffix(host, "/") + r.URL.RequestURI()
}

// statusForError implements the §4.6 / §7 failure-to-status mapping.
func statusForError(err error) int {
	switch {
	case errors.Is(err, resolver.ErrApplicationNotFound), errors.Is(err, resolver.ErrServiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, resolver.ErrAmbiguousService):
		return http.StatusInternalServerError
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, registry.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, registry.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499 // client closed request; nginx convention, no standard status exists
	default:
		return http.StatusInternalServerError
	}
}

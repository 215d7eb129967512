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

package urlparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedEndpoint is returned when no URL could be extracted from a
// registry-supplied endpoint address, or when the extracted URL uses a
// scheme other than http/https.
var ErrMalformedEndpoint = errors.New("urlparser: malformed endpoint")

// endpointEnvelope matches the JSON shape Service Fabric partitions use
// to expose more than one named listener: {"Endpoints":{"name":"url"}}.
// The empty name is the default listener.
type endpointEnvelope struct {
	Endpoints map[string]string `json:"Endpoints"`
}

// endpointPattern matches an absolute http/https/tcp URL: scheme, a host
// that is either a bracketed IPv6 literal or a dotted hostname, and an
// optional port.
var endpointPattern = regexp.MustCompile(`(?i)\b(https?|tcp)://(\[[0-9a-fA-F:]+\]|[a-zA-Z0-9.\-]+)(:\d+)?\b`)

// ExtractEndpoint locates a single absolute URL inside a raw registry
// endpoint address, which may be a bare URL, a JSON envelope, or an
// escaped ("\/") variant of either. In a JSON envelope with a default
// (empty-name) listener, that listener's URL is used; otherwise the first
// regex match in the input wins. The trailing slash, if any, is stripped. Only http/https schemes pass
// validation; tcp-scheme matches and malformed input both yield
// ErrMalformedEndpoint.
func ExtractEndpoint(raw string) (string, error) {
	unescaped := strings.ReplaceAll(raw, `\/`, "/")

	candidate := unescaped
	if strings.HasPrefix(strings.TrimSpace(unescaped), "{") {
		var env endpointEnvelope
		if err := json.Unmarshal([]byte(unescaped), &env); err == nil && len(env.Endpoints) > 0 {
			if v, ok := env.Endpoints[""]; ok {
				candidate = v
			} else {
				// No default listener; take any one entry deterministically
				// by scanning for the first match below instead.
				candidate = unescaped
			}
		}
	}

	m := endpointPattern.FindString(candidate)
	if m == "" {
		// Envelope extraction may have picked the wrong field; fall back to
		// searching the whole unescaped input.
		m = endpointPattern.FindString(unescaped)
	}
	if m == "" {
		return "", fmt.Errorf("%w: no url found in %q", ErrMalformedEndpoint, raw)
	}

	m = strings.TrimSuffix(m, "/")

	if !strings.HasPrefix(strings.ToLower(m), "http://") && !strings.HasPrefix(strings.ToLower(m), "https://") {
		return "", fmt.Errorf("%w: non-http(s) scheme in %q", ErrMalformedEndpoint, m)
	}

	return m, nil
}

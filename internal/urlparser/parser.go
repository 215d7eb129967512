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

// Package urlparser extracts an application identifier from an inbound
// request URL, and separately extracts and normalizes the endpoint
// addresses the registry hands back for a resolved Partition.
package urlparser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Mode selects how the application identifier is located in the request
// URL.
type Mode string

const (
	Subdomain            Mode = "Subdomain"
	SubdomainPreHyphens  Mode = "SubdomainPreHyphens"
	SubdomainPostHyphens Mode = "SubdomainPostHyphens"
	FirstPathSegment     Mode = "FirstPathSegment"
)

// ErrEmptyIdentifier is returned when the configured mode locates no
// usable segment in the URL.
var ErrEmptyIdentifier = errors.New("urlparser: empty identifier")

// ErrParse wraps a failure to parse the input as an absolute URL.
var ErrParse = errors.New("urlparser: could not parse url")

var prPattern = regexp.MustCompile(`^(.+)-(\d+)$`)

// ExtractIdentifier returns the application identifier for rawURL under
// the given Mode. If rawURL has no scheme, "https://" is prepended before
// parsing. A pull-request identifier of the form "<name>-<digits>" is
// rewritten to "<Capitalized>-PR<digits>" for Subdomain and
// FirstPathSegment modes only.
func ExtractIdentifier(rawURL string, mode Mode) (string, error) {
	withScheme := rawURL
	if !strings.Contains(rawURL, "://") {
		withScheme = "https://" + rawURL
	}

	u, err := url.Parse(withScheme)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrParse, rawURL, err)
	}

	var segment string
	switch mode {
	case Subdomain:
		segment = firstDotSegment(u.Hostname())
	case SubdomainPreHyphens:
		segment = firstHyphenSegment(firstDotSegment(u.Hostname()))
	case SubdomainPostHyphens:
		segment = lastHyphenSegment(firstDotSegment(u.Hostname()))
	case FirstPathSegment:
		segment = firstPathSegment(u.Path)
	default:
		return "", fmt.Errorf("urlparser: unknown mode %q", mode)
	}

	if segment == "" {
		return "", fmt.Errorf("%w: mode %s, url %q", ErrEmptyIdentifier, mode, rawURL)
	}

	if mode == Subdomain || mode == FirstPathSegment {
		segment = applyPRTransform(segment)
	}

	return segment, nil
}

// applyPRTransform rewrites "<name>-<digits>" into
// "<Capitalized(name)>-PR<digits>", leaving non-matching input untouched.
func applyPRTransform(identifier string) string {
	m := prPattern.FindStringSubmatch(identifier)
	if m == nil {
		return identifier
	}
	name, digits := m[1], m[2]
	return capitalize(name) + "-PR" + digits
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func firstDotSegment(host string) string {
	if host == "" {
		return ""
	}
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

func firstHyphenSegment(s string) string {
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i]
	}
	return s
}

func lastHyphenSegment(s string) string {
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}


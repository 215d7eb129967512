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
	"net/url"
	"regexp"
	"strings"
)

// portPortIPv6TailPattern repairs an observed malformed pattern of the
// form "scheme://host:port:ipv6tail" by truncating at the first port.
// The scheme is anchored in the pattern itself since every address
// reaching NormalizeAddress is already a validated absolute URL.
var portPortIPv6TailPattern = regexp.MustCompile(`^(\w+://[^:/]+:\d+):.*$`)

// extraColonsAfterSchemePattern repairs "scheme://host:<extra-colons>" by
// truncating the authority at the second colon.
var extraColonsAfterSchemePattern = regexp.MustCompile(`^(https?://[^:/]+:[^:/]*):.*$`)

// NormalizeAddress rewrites a validated endpoint URL's host component so
// it is routable from the proxy process: "0.0.0.0" becomes "127.0.0.1",
// "[::]" becomes "[::1]", and a host matching selfHostname
// (case-insensitive) becomes "localhost" (this avoids a TLS SAN mismatch
// when the proxy happens to be colocated with the backend). If repairing
// a malformed address does not yield a valid URL the original input is
// returned unchanged.
func NormalizeAddress(rawURL, selfHostname string) string {
	repaired := repairMalformed(rawURL)

	u, err := url.Parse(repaired)
	if err != nil {
		return rawURL
	}

	// A bare root path carries no routing information; strip it so the
	// returned endpoint never has a trailing slash.
	if u.Path == "/" {
		u.Path = ""
	}

	host := u.Hostname()
	port := u.Port()

	switch {
	case host == "0.0.0.0":
		host = "127.0.0.1"
	case host == "[::]" || host == "::":
		u.Host = joinHostPort("[::1]", port)
		return u.String()
	case selfHostname != "" && strings.EqualFold(host, selfHostname):
		host = "localhost"
	}

	u.Host = joinHostPort(host, port)
	return u.String()
}

func joinHostPort(host, port string) string {
	if port == "" {
		return host
	}
	return host + ":" + port
}

// repairMalformed applies the two documented sanitizer rules and returns
// the first repaired candidate, or the original string if neither rule
// applies. The candidate is not parsed here; NormalizeAddress does that.
func repairMalformed(raw string) string {
	if _, err := url.Parse(raw); err == nil {
		if looksWellFormed(raw) {
			return raw
		}
	}

	if portPortIPv6TailPattern.MatchString(raw) {
		if candidate := truncateAtNthColonInAuthority(raw); candidate != "" {
			return candidate
		}
	}

	if m := extraColonsAfterSchemePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}

	return raw
}

// looksWellFormed rejects inputs that parse but have an authority with
// more than one colon after the scheme, which url.Parse tolerates but
// which are not valid host:port pairs.
func looksWellFormed(raw string) bool {
	schemeIdx := strings.Index(raw, "://")
	if schemeIdx < 0 {
		return true
	}
	rest := raw[schemeIdx+3:]
	authority := rest
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		authority = rest[:i]
	}
	// Strip a bracketed IPv6 literal before counting colons.
	if strings.HasPrefix(authority, "[") {
		if end := strings.IndexByte(authority, ']'); end >= 0 {
			authority = authority[end+1:]
		}
	}
	return strings.Count(authority, ":") <= 1
}

// truncateAtNthColonInAuthority truncates raw at the second colon after
// the scheme, keeping the scheme, host and first port and dropping
// everything after it, including any path or query (the documented repair
// targets the "host:port:ipv6tail" shape).
func truncateAtNthColonInAuthority(raw string) string {
	schemeIdx := strings.Index(raw, "://")
	if schemeIdx < 0 {
		return ""
	}
	authorityStart := schemeIdx + 3
	rest := raw[authorityStart:]
	firstColon := strings.IndexByte(rest, ':')
	if firstColon < 0 {
		return ""
	}
	afterFirstColon := rest[firstColon+1:]
	secondColon := strings.IndexByte(afterFirstColon, ':')
	if secondColon < 0 {
		return ""
	}
	return raw[:authorityStart+firstColon+1+secondColon]
}

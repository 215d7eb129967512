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
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/acetone-proxy/acetone/internal/fabric"
	"github.com/acetone-proxy/acetone/internal/urlparser"
)

var (
	selfHostnameOnce sync.Once
	selfHostname     string
)

func localHostname() string {
	selfHostnameOnce.Do(func() {
		h, err := os.Hostname()
		if err == nil {
			selfHostname = h
		}
	})
	return selfHostname
}

// extractAndNormalize turns a Partition's primary endpoint address into
// a validated, normalized absolute URL. Addresses beginning with "{"
// are JSON envelopes and go through the endpoint extractor first; every
// address is then passed through address normalization regardless.
func extractAndNormalize(p fabric.Partition) (string, error) {
	ep, ok := p.PrimaryEndpoint()
	if !ok {
		return "", ErrMalformedEndpoint
	}

	raw := ep.Address
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		extracted, err := urlparser.ExtractEndpoint(raw)
		if err != nil {
			if errors.Is(err, urlparser.ErrMalformedEndpoint) {
				return "", ErrMalformedEndpoint
			}
			return "", err
		}
		raw = extracted
	}

	return urlparser.NormalizeAddress(raw, localHostname()), nil
}

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

package fabric

import "strings"

// noServiceVersionMarker is substituted for the version component of an
// Application cache key when the caller did not supply a version.
const noServiceVersionMarker = "-no-service-version"

// functionSuffix distinguishes the "function" resolution family's cache
// keys from the "general" family's, at every tier that needs it.
const functionSuffix = "-FKT-"

// ApplicationKey composes the Tier 1 cache key: an upper-cased
// concatenation of the identifier and a version marker (the version
// itself, or noServiceVersionMarker when none was supplied). When
// function is true the key carries the "-FKT-" family marker so that the
// general and function resolution families never collide.
func ApplicationKey(identifier, version string, function bool) string {
	marker := version
	if marker == "" {
		marker = noServiceVersionMarker
	}
	var b strings.Builder
	b.WriteString(identifier)
	if function {
		b.WriteString(functionSuffix)
	}
	b.WriteString(marker)
	return strings.ToUpper(b.String())
}

// ServiceKey composes the Tier 2 cache key: the owning Application's
// absolute name, with a "-FKT" suffix for the function family.
func ServiceKey(applicationName string, function bool) string {
	if function {
		return applicationName + "-FKT"
	}
	return applicationName
}

// PartitionKey composes the Tier 3 cache key: the Service's absolute
// name. Partition entries are not family-scoped beyond that, since a
// Service already belongs to exactly one family once selected.
func PartitionKey(serviceName string) string {
	return serviceName
}

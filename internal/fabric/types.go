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

// Package fabric holds the plain data types exchanged with the cluster
// registry: Application, Service, Partition and Endpoint. None of these
// types carry behaviour beyond the cache-key discipline and identifier
// normalization rules that the resolver needs to disambiguate them.
package fabric

// Status is the lifecycle state of an Application as reported by the
// registry.
type Status string

const (
	StatusReady     Status = "Ready"
	StatusUpgrading Status = "Upgrading"
	StatusDeleting  Status = "Deleting"
	StatusOther     Status = "Other"
)

// Application is a unique deployable unit on the registry. It is the unit
// of identifier resolution: the URL Parser extracts an identifier from the
// inbound request, and the Resolver maps that identifier to exactly one
// Application.
type Application struct {
	// Name is the absolute application name, e.g. "fabric:/Guard-PR12906".
	Name string
	// TypeName is the application type, e.g. "GuardType".
	TypeName string
	// TypeVersion is the application type version.
	TypeVersion string
	Status      Status
}

// Kind distinguishes a stateless service (many interchangeable replicas,
// no partitioned state) from a stateful one.
type Kind string

const (
	KindStateless Kind = "Stateless"
	KindStateful  Kind = "Stateful"
)

// Service is a routing target scoped under exactly one Application.
type Service struct {
	// Name is the absolute service name, e.g. "fabric:/Guard/GuardApi".
	Name string
	// Application is the absolute name of the owning Application.
	Application string
	TypeName    string
	Kind        Kind
}

// Endpoint is a textual address extracted from a Partition: either a bare
// URL or one entry of a JSON envelope. Validate and Normalize live in
// package urlparser, which owns the extraction regex and address-repair
// rules; this type is intentionally just a string wrapper.
type Endpoint struct {
	Address string
}

// Partition is the ephemeral, located form of a Service at a point in
// time. A Partition may expose more than one endpoint (e.g. one per
// listener); ResolvePartition picks the single endpoint to return.
type Partition struct {
	ServiceName string
	Endpoints   []Endpoint
}

// PrimaryEndpoint returns the first endpoint, or the zero Endpoint if the
// partition exposes none. The resolver is responsible for extracting and
// normalizing the address before handing it to callers.
func (p Partition) PrimaryEndpoint() (Endpoint, bool) {
	if len(p.Endpoints) == 0 {
		return Endpoint{}, false
	}
	return p.Endpoints[0], true
}

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

// Package registry defines the Resolver's only dependency on the
// cluster: a capability set for listing applications and services,
// resolving a service's current partition, and subscribing to
// service-location change notifications. internal/registry/fabricclient
// binds this to a real Service Fabric-style HTTP naming and discovery
// API; internal/registry/fake provides an in-memory double for tests.
package registry

import (
	"context"

	"github.com/acetone-proxy/acetone/internal/fabric"
)

// Port is the capability set the Resolver depends on. Implementations
// must be safe for concurrent use and must surface ctx cancellation
// from every blocking call.
type Port interface {
	ListApplications(ctx context.Context) ([]fabric.Application, error)
	ListServices(ctx context.Context, applicationName string) ([]fabric.Service, error)
	ResolvePartition(ctx context.Context, serviceName string) (fabric.Partition, error)

	// SubscribeServiceChanges registers interest in serviceName's
	// location changes. It is idempotent: subscribing to the same name
	// twice has the same effect as once. matchPrefix and includeChildren
	// mirror the cluster naming API's subscription semantics.
	SubscribeServiceChanges(ctx context.Context, serviceName string, matchPrefix, includeChildren bool) error

	// Changes returns a channel of service names that fires whenever a
	// subscribed service's location changes. The channel is never
	// closed by a well-behaved implementation while the Port is in use.
	Changes() <-chan ChangeEvent
}

// ChangeEvent names the service whose location changed.
type ChangeEvent struct {
	ServiceName string
}

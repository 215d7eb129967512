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

// Package fake is an in-memory registry.Port double for resolver and
// middleware tests: fixtures are built up with the With* methods, and
// call counts / injected faults are readable directly off the
// Registry value without a mock framework.
package fake

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/acetone-proxy/acetone/internal/fabric"
	"github.com/acetone-proxy/acetone/internal/registry"
)

// Registry is a fixture-built, in-memory registry.Port.
type Registry struct {
	mu sync.Mutex

	applications []fabric.Application
	services     map[string][]fabric.Service
	partitions   map[string]fabric.Partition

	// partitionErrs, when non-empty for a service name, is popped one
	// error per ResolvePartition call before falling through to the
	// fixed partitions map.
	partitionErrs map[string][]error

	subscriptions map[string]bool
	changes       chan registry.ChangeEvent

	listApplicationsCalls int32
	listServicesCalls     int32
	resolvePartitionCalls int32
}

// New returns an empty fake registry.
func New() *Registry {
	return &Registry{
		services:      make(map[string][]fabric.Service),
		partitions:    make(map[string]fabric.Partition),
		partitionErrs: make(map[string][]error),
		subscriptions: make(map[string]bool),
		changes:       make(chan registry.ChangeEvent, 16),
	}
}

// WithApplication registers app so ListApplications returns it.
func (r *Registry) WithApplication(app fabric.Application) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applications = append(r.applications, app)
	return r
}

// WithService registers svc under its Application so ListServices(app)
// returns it.
func (r *Registry) WithService(svc fabric.Service) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[svc.Application] = append(r.services[svc.Application], svc)
	return r
}

// WithPartition fixes the partition ResolvePartition returns for
// serviceName once no queued error remains.
func (r *Registry) WithPartition(serviceName string, partition fabric.Partition) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partitions[serviceName] = partition
	return r
}

// QueuePartitionError appends err to the list consumed, in order, by
// ResolvePartition(serviceName) before the fixed partition takes over.
func (r *Registry) QueuePartitionError(serviceName string, err error) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partitionErrs[serviceName] = append(r.partitionErrs[serviceName], err)
	return r
}

func (r *Registry) ListApplications(ctx context.Context) ([]fabric.Application, error) {
	atomic.AddInt32(&r.listApplicationsCalls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fabric.Application, len(r.applications))
	copy(out, r.applications)
	return out, nil
}

func (r *Registry) ListServices(ctx context.Context, applicationName string) ([]fabric.Service, error) {
	atomic.AddInt32(&r.listServicesCalls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	svcs := r.services[applicationName]
	out := make([]fabric.Service, len(svcs))
	copy(out, svcs)
	return out, nil
}

func (r *Registry) ResolvePartition(ctx context.Context, serviceName string) (fabric.Partition, error) {
	atomic.AddInt32(&r.resolvePartitionCalls, 1)
	if err := ctx.Err(); err != nil {
		return fabric.Partition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if queue := r.partitionErrs[serviceName]; len(queue) > 0 {
		err := queue[0]
		r.partitionErrs[serviceName] = queue[1:]
		return fabric.Partition{}, err
	}

	p, ok := r.partitions[serviceName]
	if !ok {
		return fabric.Partition{}, registry.ErrPermanent
	}
	return p, nil
}

func (r *Registry) SubscribeServiceChanges(_ context.Context, serviceName string, _, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[serviceName] = true
	return nil
}

func (r *Registry) Changes() <-chan registry.ChangeEvent {
	return r.changes
}

// Emit delivers a change event for serviceName to any Resolver
// consuming Changes(). It does not require a prior Subscribe call;
// callers that want to assert subscription discipline should check
// IsSubscribed first.
func (r *Registry) Emit(serviceName string) {
	r.changes <- registry.ChangeEvent{ServiceName: serviceName}
}

// IsSubscribed reports whether SubscribeServiceChanges has been called
// for serviceName.
func (r *Registry) IsSubscribed(serviceName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscriptions[serviceName]
}

func (r *Registry) ListApplicationsCalls() int {
	return int(atomic.LoadInt32(&r.listApplicationsCalls))
}

func (r *Registry) ListServicesCalls() int {
	return int(atomic.LoadInt32(&r.listServicesCalls))
}

func (r *Registry) ResolvePartitionCalls() int {
	return int(atomic.LoadInt32(&r.resolvePartitionCalls))
}

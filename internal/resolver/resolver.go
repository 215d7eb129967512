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

// Package resolver orchestrates the three-step identifier-to-endpoint
// resolution: Application lookup, Service selection, Partition
// resolution and endpoint extraction. It is the only component that
// mutates the Tier 1/Tier 2 caches, and the only consumer of the
// registry's change notification stream.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/acetone-proxy/acetone/internal/cache"
	"github.com/acetone-proxy/acetone/internal/fabric"
	"github.com/acetone-proxy/acetone/internal/registry"
	"github.com/acetone-proxy/acetone/internal/resilience"
)

// Resolver is the central orchestrator described in §4.5: it consults
// the three-tier cache, falls back to the registry through the
// resilience pipeline on a miss, and reacts to change notifications by
// clearing the Service and Partition tiers.
type Resolver struct {
	cache    *cache.Cache
	registry registry.Port
	pipeline *resilience.Pipeline
	log      logrus.FieldLogger
	recorder Recorder

	stop chan struct{}
	done chan struct{}

	closed    atomic.Bool
	available atomic.Bool
}

// Options configures a Resolver.
type Options struct {
	Cache    *cache.Cache
	Registry registry.Port
	Pipeline *resilience.Pipeline
	Log      logrus.FieldLogger
	Recorder Recorder

	// Warmup, if true, lists applications in the background at
	// construction time and issues a best-effort refreshing
	// ResolveEndpoint for each distinct normalized application name.
	// Application type names are not used. Failures are logged, never
	// returned.
	Warmup bool
}

// New constructs a Resolver and starts its notification-consuming
// goroutine. Call Close to stop it.
func New(opts Options) *Resolver {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	r := &Resolver{
		cache:    opts.Cache,
		registry: opts.Registry,
		pipeline: opts.Pipeline,
		log:      log,
		recorder: rec,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	r.available.Store(true)

	go r.consumeNotifications()

	if opts.Warmup {
		go r.warmup()
	}

	return r
}

// Close stops the notification-consuming goroutine and waits for it to
// exit.
func (r *Resolver) Close() {
	r.closed.Store(true)
	close(r.stop)
	<-r.done
}

// Ready reports whether the Resolver is fit to serve traffic: not
// closed, and the registry was reachable on its last probe. cmd/acetoned
// wires this to the /health/ready handler.
func (r *Resolver) Ready() bool {
	return !r.closed.Load() && r.available.Load()
}

// Probe issues a lightweight registry call and records whether it
// succeeded, for use by a periodic readiness prober. It deliberately
// does not go through the resilience pipeline: a single slow or failed
// probe should flip readiness immediately rather than wait out retries.
func (r *Resolver) Probe(ctx context.Context) {
	_, err := r.registry.ListApplications(ctx)
	r.available.Store(err == nil)
}

// consumeNotifications holds no resolution-path guard: it only clears
// Tier 2/3 in response to a change event, never synchronously re-enters
// resolution.
func (r *Resolver) consumeNotifications() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case evt, ok := <-r.registry.Changes():
			if !ok {
				return
			}
			r.log.WithField("service", evt.ServiceName).Debug("service change notification received, clearing service and partition tiers")
			r.cache.ClearServiceAndPartitionCache()
		}
	}
}

func (r *Resolver) warmup() {
	ctx := context.Background()
	apps, err := r.registry.ListApplications(ctx)
	if err != nil {
		r.log.WithError(err).Warn("warmup: failed to list applications")
		return
	}
	seen := make(map[string]bool)
	for _, app := range apps {
		id := fabric.NormalizeIdentifier(app.Name)
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := r.ResolveEndpoint(ctx, id, "", app.TypeVersion, true); err != nil {
			r.log.WithError(err).WithField("identifier", id).Debug("warmup: resolution failed")
		}
	}
}

// ResolveEndpoint resolves identifier to a general-service endpoint.
// invocationID is carried through for log correlation only.
func (r *Resolver) ResolveEndpoint(ctx context.Context, identifier, invocationID, version string, refresh bool) (string, error) {
	return r.resolve(ctx, identifier, invocationID, version, refresh, false)
}

// ResolveFunctionEndpoint resolves identifier to a function-service
// endpoint.
func (r *Resolver) ResolveFunctionEndpoint(ctx context.Context, identifier, invocationID, version string, refresh bool) (string, error) {
	return r.resolve(ctx, identifier, invocationID, version, refresh, true)
}

func (r *Resolver) resolve(ctx context.Context, identifier, invocationID, version string, refresh, function bool) (endpoint string, err error) {
	start := time.Now()
	log := r.log.WithField("invocationId", invocationID).WithField("identifier", identifier)

	defer func() {
		r.recorder.ResolutionCompleted(statusFor(err), time.Since(start))
	}()

	app, err := r.resolveApplication(ctx, log, identifier, version, refresh, function)
	if err != nil {
		return "", err
	}

	svc, err := r.resolveService(ctx, log, app, function)
	if err != nil {
		return "", err
	}

	return r.resolvePartition(ctx, log, svc, refresh)
}

// --- Step A: Application lookup ---------------------------------------

func (r *Resolver) resolveApplication(ctx context.Context, log logrus.FieldLogger, identifier, version string, refresh, function bool) (fabric.Application, error) {
	key := fabric.ApplicationKey(identifier, version, function)

	if !refresh {
		if app, ok := r.cache.GetApplication(key); ok {
			return app, nil
		}
	}

	return r.cache.LoadApplication(key, func() (fabric.Application, error) {
		if !refresh {
			if app, ok := r.cache.GetApplication(key); ok {
				return app, nil
			}
		}

		apps, err := resilience.Execute(ctx, r.pipeline, "ListApplications", func(ctx context.Context) ([]fabric.Application, error) {
			return r.registry.ListApplications(ctx)
		})
		if err != nil {
			return fabric.Application{}, err
		}

		app, err := selectApplication(apps, identifier, version, log)
		if err != nil {
			return fabric.Application{}, err
		}

		r.cache.PutApplication(key, app)
		return app, nil
	})
}

// selectApplication implements the seven-step disambiguation rule of
// §4.5 Step A.
func selectApplication(apps []fabric.Application, identifier, version string, log logrus.FieldLogger) (fabric.Application, error) {
	normID := fabric.NormalizeIdentifier(identifier)

	var byType []fabric.Application
	for _, a := range apps {
		if fabric.NormalizeTypeIdentifier(a.TypeName) == normID {
			byType = append(byType, a)
		}
	}

	candidates := byType
	if len(byType) > 1 {
		var byName []fabric.Application
		for _, a := range byType {
			if fabric.NormalizeIdentifier(a.Name) == normID {
				byName = append(byName, a)
			}
		}
		if len(byName) == 1 {
			candidates = byName
		}
	} else if len(byType) == 0 {
		for _, a := range apps {
			if fabric.NormalizeIdentifier(a.Name) == normID {
				candidates = append(candidates, a)
			}
		}
	}

	if len(candidates) == 0 {
		return fabric.Application{}, ErrApplicationNotFound
	}

	if len(candidates) > 1 && version != "" {
		var byVersion []fabric.Application
		for _, a := range candidates {
			if a.TypeVersion == version {
				byVersion = append(byVersion, a)
			}
		}
		if len(byVersion) > 0 {
			candidates = byVersion
		}
	}

	if len(candidates) > 1 {
		var ready []fabric.Application
		for _, a := range candidates {
			if a.Status == fabric.StatusReady {
				ready = append(ready, a)
			}
		}
		if len(ready) > 0 {
			candidates = ready
		}
	}

	if len(candidates) > 1 {
		sort.Slice(candidates, func(i, j int) bool {
			return fabric.NormalizeIdentifier(candidates[i].Name) < fabric.NormalizeIdentifier(candidates[j].Name)
		})
		log.WithField("candidateCount", len(candidates)).Warn("multiple applications matched after disambiguation, picking lexicographically first")
	}

	return candidates[0], nil
}

// --- Step B: Service selection -----------------------------------------

func (r *Resolver) resolveService(ctx context.Context, log logrus.FieldLogger, app fabric.Application, function bool) (fabric.Service, error) {
	key := fabric.ServiceKey(app.Name, function)

	if svc, ok := r.cache.GetService(key); ok {
		return svc, nil
	}

	return r.cache.LoadService(key, func() (fabric.Service, error) {
		if svc, ok := r.cache.GetService(key); ok {
			return svc, nil
		}

		svcs, err := resilience.Execute(ctx, r.pipeline, "ListServices", func(ctx context.Context) ([]fabric.Service, error) {
			return r.registry.ListServices(ctx, app.Name)
		})
		if err != nil {
			return fabric.Service{}, err
		}

		svc, err := selectService(svcs, function)
		if err != nil {
			return fabric.Service{}, err
		}

		if err := r.registry.SubscribeServiceChanges(ctx, svc.Name, true, false); err != nil {
			log.WithError(err).WithField("service", svc.Name).Warn("failed to subscribe to service changes")
		}

		r.cache.PutService(key, svc)
		return svc, nil
	})
}

func selectService(svcs []fabric.Service, function bool) (fabric.Service, error) {
	var matches []fabric.Service
	for _, s := range svcs {
		if s.Kind != fabric.KindStateless {
			continue
		}
		typeName := strings.ToUpper(s.TypeName)
		if function {
			if strings.Contains(typeName, "FUNCTION") {
				matches = append(matches, s)
			}
			continue
		}
		if strings.Contains(typeName, "API") || strings.Contains(typeName, "SERVICE") {
			matches = append(matches, s)
		}
	}

	switch len(matches) {
	case 0:
		return fabric.Service{}, ErrServiceNotFound
	case 1:
		return matches[0], nil
	default:
		return fabric.Service{}, ErrAmbiguousService
	}
}

// --- Step C: Partition resolution and endpoint selection ---------------

func (r *Resolver) resolvePartition(ctx context.Context, log logrus.FieldLogger, svc fabric.Service, refresh bool) (string, error) {
	key := fabric.PartitionKey(svc.Name)

	if !refresh {
		if p, ok := r.cache.GetPartition(key); ok {
			return extractAndNormalize(p)
		}
	}

	p, err := r.cache.LoadPartition(key, func() (fabric.Partition, error) {
		if !refresh {
			if p, ok := r.cache.GetPartition(key); ok {
				return p, nil
			}
		}

		partition, err := resilience.Execute(ctx, r.pipeline, "ResolvePartition", func(ctx context.Context) (fabric.Partition, error) {
			return r.registry.ResolvePartition(ctx, svc.Name)
		})
		if err != nil {
			return fabric.Partition{}, err
		}
		if _, ok := partition.PrimaryEndpoint(); !ok {
			return fabric.Partition{}, fmt.Errorf("%w: partition has no endpoints", registry.ErrTransient)
		}

		r.cache.PutPartition(key, partition)
		return partition, nil
	})
	if err != nil {
		return "", err
	}

	return extractAndNormalize(p)
}

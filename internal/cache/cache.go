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

// Package cache implements the three-tier cache in front of the cluster
// registry: a long-lived Application tier, an event-invalidated Service
// tier, and a short-TTL, event-invalidated Partition tier. Every tier
// collapses concurrent misses for the same key onto a single in-flight
// load via golang.org/x/sync/singleflight, so at most one registry call
// is ever in flight for a given (tier, key) pair.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/acetone-proxy/acetone/internal/fabric"
	"golang.org/x/sync/singleflight"
)

// Options configures the Partition tier.
type Options struct {
	// PartitionTTL is the absolute lifetime of a cached partition entry.
	PartitionTTL time.Duration
	// DisablePartitionCache turns Tier 3 off entirely: every Get is a
	// miss and Put is a no-op.
	DisablePartitionCache bool
	// Recorder receives hit/miss notifications. If nil, hits and misses
	// are silently dropped.
	Recorder Recorder
}

type partitionEntry struct {
	partition fabric.Partition
	expiresAt time.Time
}

// Cache is the three-tier store the Resolver consults before calling the
// registry. The zero value is not usable; construct with New.
type Cache struct {
	recorder Recorder

	applications sync.Map // string -> fabric.Application
	appGroup     singleflight.Group

	services sync.Map // string -> fabric.Service
	svcGroup singleflight.Group

	// partitions holds the current generation's backing store. Clearing
	// the partition tier swaps in a fresh, empty map — this is the
	// "bulk-invalidation token": any Set that raced the swap either
	// completed against the old map (and is now unreachable, i.e.
	// evicted) or lands in the new one.
	partitions atomic.Pointer[sync.Map]
	partGroup  singleflight.Group

	ttl      time.Duration
	disabled bool
}

// New constructs a Cache. A fresh, empty partition generation is
// installed immediately.
func New(opts Options) *Cache {
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	ttl := opts.PartitionTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &Cache{
		recorder: rec,
		ttl:      ttl,
		disabled: opts.DisablePartitionCache,
	}
	c.partitions.Store(&sync.Map{})
	return c
}

// --- Tier 1: Application ---------------------------------------------

// GetApplication returns the cached Application for key, recording a hit
// or miss.
func (c *Cache) GetApplication(key string) (fabric.Application, bool) {
	v, ok := c.applications.Load(key)
	if !ok {
		c.recorder.CacheMiss(TierApplication)
		return fabric.Application{}, false
	}
	c.recorder.CacheHit(TierApplication)
	return v.(fabric.Application), true
}

// PutApplication writes key unconditionally. Callers must only do so
// from within LoadApplication's loader, which runs under the per-key
// single-flight guard, preserving the "never overwritten outside the
// guard" invariant.
func (c *Cache) PutApplication(key string, app fabric.Application) {
	c.applications.Store(key, app)
}

// LoadApplication collapses concurrent misses for key onto a single
// invocation of loader. Every caller observes the same result (or error);
// callers are not told whether they shared another caller's load.
func (c *Cache) LoadApplication(key string, loader func() (fabric.Application, error)) (fabric.Application, error) {
	v, err, _ := c.appGroup.Do(key, func() (interface{}, error) {
		return loader()
	})
	if err != nil {
		return fabric.Application{}, err
	}
	return v.(fabric.Application), nil
}

// ClearApplications evicts the entire Application tier. This is the only
// way Tier 1 entries disappear short of process restart.
func (c *Cache) ClearApplications() {
	c.applications.Range(func(k, _ interface{}) bool {
		c.applications.Delete(k)
		return true
	})
}

// --- Tier 2: Service ---------------------------------------------------

// GetService returns the cached Service for key, recording a hit or
// miss.
func (c *Cache) GetService(key string) (fabric.Service, bool) {
	v, ok := c.services.Load(key)
	if !ok {
		c.recorder.CacheMiss(TierService)
		return fabric.Service{}, false
	}
	c.recorder.CacheHit(TierService)
	return v.(fabric.Service), true
}

func (c *Cache) PutService(key string, svc fabric.Service) {
	c.services.Store(key, svc)
}

// LoadService collapses concurrent misses for key onto a single
// invocation of loader.
func (c *Cache) LoadService(key string, loader func() (fabric.Service, error)) (fabric.Service, error) {
	v, err, _ := c.svcGroup.Do(key, func() (interface{}, error) {
		return loader()
	})
	if err != nil {
		return fabric.Service{}, err
	}
	return v.(fabric.Service), nil
}

// --- Tier 3: Partition ---------------------------------------------------

// GetPartition returns the cached Partition for key if Tier 3 is enabled,
// unexpired, and belongs to the current generation.
func (c *Cache) GetPartition(key string) (fabric.Partition, bool) {
	if c.disabled {
		c.recorder.CacheMiss(TierPartition)
		return fabric.Partition{}, false
	}
	m := c.partitions.Load()
	v, ok := m.Load(key)
	if !ok {
		c.recorder.CacheMiss(TierPartition)
		return fabric.Partition{}, false
	}
	entry := v.(partitionEntry)
	if time.Now().After(entry.expiresAt) {
		m.Delete(key)
		c.recorder.CacheMiss(TierPartition)
		return fabric.Partition{}, false
	}
	c.recorder.CacheHit(TierPartition)
	return entry.partition, true
}

// PutPartition writes key into the current generation with a fresh
// absolute expiration. A no-op when Tier 3 is disabled.
func (c *Cache) PutPartition(key string, partition fabric.Partition) {
	if c.disabled {
		return
	}
	m := c.partitions.Load()
	m.Store(key, partitionEntry{partition: partition, expiresAt: time.Now().Add(c.ttl)})
}

// LoadPartition collapses concurrent misses for key onto a single
// invocation of loader.
func (c *Cache) LoadPartition(key string, loader func() (fabric.Partition, error)) (fabric.Partition, error) {
	v, err, _ := c.partGroup.Do(key, func() (interface{}, error) {
		return loader()
	})
	if err != nil {
		return fabric.Partition{}, err
	}
	return v.(fabric.Partition), nil
}

// ClearServiceAndPartitionCache cancels the bulk-invalidation token: it
// swaps in a fresh, empty Partition generation (evicting every entry
// from the prior generation atomically, in O(1)) and clears the Service
// tier. The Application tier is left untouched.
func (c *Cache) ClearServiceAndPartitionCache() {
	c.partitions.Store(&sync.Map{})
	c.services.Range(func(k, _ interface{}) bool {
		c.services.Delete(k)
		return true
	})
}

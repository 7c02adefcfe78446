// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
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

// Package registry holds the current droplet fleet as a single
// atomically-swapped snapshot. Readers never block a concurrent Replace,
// and Replace never blocks a concurrent read.
package registry

import (
	"sync/atomic"
)

// Droplet is an immutable record for one refresh cycle.
type Droplet struct {
	ID        uint64
	Name      string
	Status    string
	MemoryMB  uint32
	VCPUCount uint32
	DiskGB    uint32
}

// Evictor is satisfied by the metric store's DeleteByLabel; the registry
// depends on this narrow interface rather than the concrete store type so
// it can be tested without constructing a real Store.
type Evictor interface {
	DeleteByLabel(family, key string, predicate func(value string) bool)
}

// perDropletFamilies lists every Metric Family keyed by a "droplet" label,
// i.e. every family the registry must sweep on a droplet's disappearance.
var perDropletFamilies = []string{
	"droxporter_droplet_memory_settings",
	"droxporter_droplet_vcpu_settings",
	"droxporter_droplet_disk_settings",
	"droxporter_droplet_status",
	"droxporter_droplet_bandwidth",
	"droxporter_droplet_cpu",
	"droxporter_droplet_filesystem",
	"droxporter_droplet_memory",
	"droxporter_droplet_load",
}

// Registry is a lock-free, read-mostly snapshot of the droplet fleet.
type Registry struct {
	snapshot atomic.Pointer[[]Droplet]
	evictor  Evictor
}

// New constructs an empty Registry. evictor is notified of droplets that
// drop out of the fleet on each Replace; it may be nil in tests that don't
// care about eviction.
func New(evictor Evictor) *Registry {
	r := &Registry{evictor: evictor}
	empty := make([]Droplet, 0)
	r.snapshot.Store(&empty)
	return r
}

// List returns the current snapshot. O(1), never blocks.
func (r *Registry) List() []Droplet {
	p := r.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Replace atomically installs next as the current snapshot. Any droplet
// name present in the previous snapshot but absent from next triggers
// eviction of its series from every per-droplet Metric Family, so a
// droplet that's been destroyed or renamed doesn't leave stale series
// behind.
func (r *Registry) Replace(next []Droplet) {
	old := r.snapshot.Load()
	snap := make([]Droplet, len(next))
	copy(snap, next)
	r.snapshot.Store(&snap)

	if old == nil || r.evictor == nil {
		return
	}
	gone := namesGone(*old, snap)
	if len(gone) == 0 {
		return
	}
	for _, family := range perDropletFamilies {
		r.evictor.DeleteByLabel(family, "droplet", func(v string) bool {
			_, stale := gone[v]
			return stale
		})
	}
}

func namesGone(old, next []Droplet) map[string]struct{} {
	present := make(map[string]struct{}, len(next))
	for _, d := range next {
		present[d.Name] = struct{}{}
	}
	gone := make(map[string]struct{})
	for _, d := range old {
		if _, ok := present[d.Name]; !ok {
			gone[d.Name] = struct{}{}
		}
	}
	return gone
}

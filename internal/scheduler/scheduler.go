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

// Package scheduler owns every periodic Job Descriptor: the droplet-list
// refresh and the per-family metric polls. Each job runs in its own
// goroutine under Scheduler.Run; cmd/droxporter registers Run as a single
// actor in the process's github.com/oklog/run.Group.
package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"droxporter/internal/jobs"
	"droxporter/internal/keypool"
	"droxporter/internal/metricstore"
	"droxporter/internal/provider"
	"droxporter/internal/registry"
)

// logSuppressWindow is the per-(family,status) minimum gap between
// PermanentHTTP/ParseError log lines, per spec.md §7.
const logSuppressWindow = time.Minute

// FamilyJobConfig is one resolved `metrics.<family>` entry from
// configuration.
type FamilyJobConfig struct {
	Family   string
	Interval time.Duration
	KeyGroup string
	// SubTypes overrides the default sub-type list from jobs.Table when
	// non-empty.
	SubTypes []string
}

// DropletListConfig resolves the `droplets.*` configuration block.
type DropletListConfig struct {
	Interval time.Duration
	KeyGroup string
	// Metrics is the subset of {memory,vcpu,disk,status} to emit from the
	// droplet-list response.
	Metrics []string
}

// Deps bundles the shared components a Scheduler drives.
type Deps struct {
	Pool        *keypool.Pool
	Client      *provider.Client
	Store       *metricstore.Store
	Registry    *registry.Registry
	Logger      log.Logger
	Parallelism int
}

// Scheduler runs the droplet-list job and every enabled per-family job as
// independent actors.
type Scheduler struct {
	deps        Deps
	dropletList DropletListConfig
	familyJobs  []FamilyJobConfig
	parallelism int

	logMu        sync.Mutex
	lastLoggedAt map[string]time.Time
}

// New constructs a Scheduler. familyJobs should already be filtered to
// enabled families by the caller (config loading resolves `enabled`).
func New(deps Deps, dropletList DropletListConfig, familyJobs []FamilyJobConfig) *Scheduler {
	if deps.Parallelism <= 0 {
		deps.Parallelism = 8
	}
	declareSelfMetrics(deps.Store)
	return &Scheduler{
		deps:         deps,
		dropletList:  dropletList,
		familyJobs:   familyJobs,
		parallelism:  deps.Parallelism,
		lastLoggedAt: make(map[string]time.Time),
	}
}

func declareSelfMetrics(store *metricstore.Store) {
	store.Declare(metricstore.FamilyDef{Name: "droxporter_jobs_counter", Help: "Outcome of each scheduler tick.", Type: metricstore.Counter, Labels: []string{"type", "result"}})
	store.Declare(metricstore.FamilyDef{Name: "droxporter_jobs_time_histogram_seconds", Help: "Wall-clock duration of a scheduler tick.", Type: metricstore.Histogram, Labels: []string{"type"}, Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}})
	store.Declare(metricstore.FamilyDef{Name: "droxporter_jobs_skipped_total", Help: "Ticks skipped because the previous tick was still running.", Type: metricstore.Counter, Labels: []string{"type"}})
	store.Declare(metricstore.FamilyDef{Name: "droxporter_keys_errors", Help: "Key pool reservation failures.", Type: metricstore.Counter, Labels: []string{"key_type", "error"}})
	for _, def := range jobs.MetricStoreFamilies() {
		store.Declare(def)
	}
}

// Run drives the droplet-list job and every family job until ctx is
// cancelled, returning once all of them have stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	start := time.Now()
	done := make(chan struct{})
	active := 1 + len(s.familyJobs)
	finished := make(chan struct{}, active)

	go func() {
		runPeriodic(ctx, start, s.dropletList.Interval, s.tickDropletList, func() {
			s.deps.Store.IncCounter("droxporter_jobs_skipped_total", map[string]string{"type": "droplet_list"}, 1)
		})
		finished <- struct{}{}
	}()

	for _, fj := range s.familyJobs {
		fj := fj
		go func() {
			runPeriodic(ctx, start, fj.Interval, func(tickCtx context.Context) {
				s.tickFamily(tickCtx, fj)
			}, func() {
				s.deps.Store.IncCounter("droxporter_jobs_skipped_total", map[string]string{"type": fj.Family}, 1)
			})
			finished <- struct{}{}
		}()
	}

	go func() {
		for i := 0; i < active; i++ {
			<-finished
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		<-done
		return nil
	case <-done:
		return nil
	}
}

func (s *Scheduler) tickDropletList(ctx context.Context) {
	jobType := "droplet_list"
	started := time.Now()
	result := "success"

	handle, err := s.deps.Pool.Reserve(s.dropletList.KeyGroup)
	if err != nil {
		s.recordKeyError(handle.KeyType, s.dropletList.KeyGroup, err)
		result = "fail"
		s.recordTick(jobType, result, started)
		return
	}

	var all []registry.Droplet
	page := 1
	for {
		droplets, inline, hasNext, err := s.deps.Client.ListDropletsPage(ctx, handle.Token, page)
		if err != nil {
			level.Warn(s.deps.Logger).Log("msg", "droplet list fetch failed", "page", page, "err", err)
			result = "fail"
			break
		}
		all = append(all, droplets...)
		s.applyDropletListResults(droplets, inline)
		if !hasNext {
			break
		}
		page++
		handle, err = s.deps.Pool.Reserve(s.dropletList.KeyGroup)
		if err != nil {
			s.recordKeyError(handle.KeyType, s.dropletList.KeyGroup, err)
			result = "fail"
			break
		}
	}

	if result == "success" {
		s.deps.Registry.Replace(all)
	}
	s.recordTick(jobType, result, started)
}

func (s *Scheduler) applyDropletListResults(droplets []registry.Droplet, inline []provider.Sample) {
	for _, d := range droplets {
		for _, metric := range s.dropletList.Metrics {
			switch metric {
			case "memory":
				s.deps.Store.Upsert("droxporter_droplet_memory_settings", map[string]string{"droplet": d.Name}, float64(d.MemoryMB))
			case "vcpu":
				s.deps.Store.Upsert("droxporter_droplet_vcpu_settings", map[string]string{"droplet": d.Name}, float64(d.VCPUCount))
			case "disk":
				s.deps.Store.Upsert("droxporter_droplet_disk_settings", map[string]string{"droplet": d.Name}, float64(d.DiskGB))
			case "status":
				// Drop the droplet's earlier status series so only the
				// current status remains.
				s.deps.Store.DeleteByLabel("droxporter_droplet_status", "droplet", func(v string) bool { return v == d.Name })
				labels, value := jobs.StatusLabels(d.Name, d.Status)
				s.deps.Store.Upsert("droxporter_droplet_status", labels, value)
			}
		}
	}
	for _, sample := range inline {
		s.deps.Store.Upsert("droxporter_droplet_bandwidth", sample.Labels, sample.Value)
	}
}

func (s *Scheduler) tickFamily(ctx context.Context, fj FamilyJobConfig) {
	started := time.Now()
	def, ok := jobs.Table[fj.Family]
	if !ok {
		return
	}
	subTypes := fj.SubTypes
	if len(subTypes) == 0 {
		subTypes = def.SubTypes
	}
	if len(subTypes) == 0 {
		subTypes = []string{""}
	}

	type unit struct {
		droplet registry.Droplet
		subType string
	}
	var units []unit
	for _, d := range s.deps.Registry.List() {
		for _, st := range subTypes {
			units = append(units, unit{droplet: d, subType: st})
		}
	}

	var failed atomic.Bool
	fanOut(ctx, units, s.parallelism, func(ctx context.Context, u unit) {
		handle, err := s.deps.Pool.Reserve(fj.KeyGroup)
		if err != nil {
			s.recordKeyError(handle.KeyType, fj.KeyGroup, err)
			failed.Store(true)
			return
		}
		value, err := s.deps.Client.FetchMetric(ctx, handle.Token, def.Endpoint, u.droplet.ID, u.subType)
		if err != nil {
			s.logFetchError(fj.Family, err)
			failed.Store(true)
			return
		}
		s.deps.Store.Upsert(def.StoreFamily(), def.Labels(u.droplet.Name, u.subType), value)
	}, func(u unit, recovered any) {
		level.Error(s.deps.Logger).Log("msg", "panic in fan-out worker", "family", fj.Family, "droplet", u.droplet.Name, "recovered", recovered)
		failed.Store(true)
	})

	result := "success"
	if failed.Load() {
		result = "fail"
	}
	s.recordTick(fj.Family, result, started)
}

func (s *Scheduler) recordKeyError(keyType, keyGroup string, err error) {
	reason := "limit exceeded"
	if errors.Is(err, keypool.ErrNoKeys) {
		reason = "key not found"
	}
	if keyType == "" {
		keyType = keyGroup
	}
	s.deps.Store.IncCounter("droxporter_keys_errors", map[string]string{"key_type": keyType, "error": reason}, 1)
}

// logFetchError logs a PermanentHTTP/ParseError failure, suppressed to at
// most once per (family, status) per logSuppressWindow — spec.md §7's
// "log once per (family, status) per minute" — so a droplet stuck
// returning the same 4xx doesn't spam the log on every tick. TransientHTTP
// failures are intentionally not logged here: §7 only requires a counter
// for them.
func (s *Scheduler) logFetchError(family string, err error) {
	var trans *provider.TransientError
	if errors.As(err, &trans) {
		return
	}

	status := errorStatus(err)
	key := family + "|" + status

	s.logMu.Lock()
	last, seen := s.lastLoggedAt[key]
	now := time.Now()
	if seen && now.Sub(last) < logSuppressWindow {
		s.logMu.Unlock()
		return
	}
	s.lastLoggedAt[key] = now
	s.logMu.Unlock()

	level.Warn(s.deps.Logger).Log("msg", "metric fetch failed", "family", family, "status", status, "err", err)
}

// errorStatus extracts the (family, status) dedup key's status component
// from a provider error: the HTTP status code for a PermanentError, or
// "parse" for a malformed response.
func errorStatus(err error) string {
	var perm *provider.PermanentError
	if errors.As(err, &perm) {
		return strconv.Itoa(perm.StatusCode)
	}
	var parse *provider.ParseError
	if errors.As(err, &parse) {
		return "parse"
	}
	return "unknown"
}

func (s *Scheduler) recordTick(jobType, result string, started time.Time) {
	s.deps.Store.IncCounter("droxporter_jobs_counter", map[string]string{"type": jobType, "result": result}, 1)
	s.deps.Store.ObserveHistogram("droxporter_jobs_time_histogram_seconds", map[string]string{"type": jobType}, time.Since(started).Seconds())
}

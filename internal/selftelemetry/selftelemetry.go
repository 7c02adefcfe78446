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

// Package selftelemetry periodically samples the exporter's own observable
// state — the key pool's live budgets and the process's gross memory
// footprint — into the Metric Store. The scheduler records job-outcome
// counters (jobs_counter, jobs_skipped_total, keys_errors) directly as
// they happen; this package covers the metrics that are a *snapshot* of
// current state rather than an event count.
package selftelemetry

import (
	"context"
	"runtime"
	"time"

	"droxporter/internal/keypool"
	"droxporter/internal/metricstore"
)

// Metric names the optional families this package can emit, matching the
// `exporter-metrics.metrics` configuration subset {cpu,memory,limits,requests,jobs}.
type Metric string

const (
	MetricCPU      Metric = "cpu"
	MetricMemory   Metric = "memory"
	MetricLimits   Metric = "limits"
	MetricRequests Metric = "requests"
	MetricJobs     Metric = "jobs"
)

// Recorder owns the periodic self-telemetry tick.
type Recorder struct {
	store   *metricstore.Store
	pool    *keypool.Pool
	enabled map[Metric]bool
}

// New constructs a Recorder and declares every self-metric family it might
// emit (families with zero samples are omitted from Render automatically).
func New(store *metricstore.Store, pool *keypool.Pool, metrics []string) *Recorder {
	enabled := make(map[Metric]bool, len(metrics))
	for _, m := range metrics {
		enabled[Metric(m)] = true
	}
	r := &Recorder{store: store, pool: pool, enabled: enabled}
	r.declare()
	return r
}

func (r *Recorder) declare() {
	r.store.Declare(metricstore.FamilyDef{Name: "droxporter_up", Help: "1 while the exporter process is alive.", Type: metricstore.Gauge})
	if r.enabled[MetricLimits] {
		r.store.Declare(metricstore.FamilyDef{Name: "droxporter_remaining_limits_by_key", Help: "Remaining budget for a key's bucket.", Type: metricstore.Gauge, Labels: []string{"key_type", "timeframe"}})
		r.store.Declare(metricstore.FamilyDef{Name: "droxporter_limits_status_count", Help: "Count of keys by key_type and status.", Type: metricstore.Gauge, Labels: []string{"key_type", "status"}})
	}
	if r.enabled[MetricMemory] {
		r.store.Declare(metricstore.FamilyDef{Name: "droxporter_process_memory_rss_bytes", Help: "Approximate process memory footprint (runtime.MemStats.Sys; not true RSS).", Type: metricstore.Gauge})
	}
	if r.enabled[MetricCPU] {
		r.store.Declare(metricstore.FamilyDef{Name: "droxporter_process_cpu_seconds_total", Help: "Process CPU time. Unimplemented: always 0.", Type: metricstore.Counter})
	}
}

// Run ticks every interval until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	r.tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Recorder) tick() {
	r.store.Upsert("droxporter_up", nil, 1)

	if r.enabled[MetricLimits] {
		r.recordLimits()
	}
	if r.enabled[MetricMemory] {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		r.store.Upsert("droxporter_process_memory_rss_bytes", nil, float64(m.Sys))
	}
	if r.enabled[MetricCPU] {
		// Real process CPU time collection is out of scope; this is an
		// intentionally unimplemented stub (see DESIGN.md).
		r.store.IncCounter("droxporter_process_cpu_seconds_total", nil, 0)
	}
}

func (r *Recorder) recordLimits() {
	statusCounts := make(map[string]map[string]int)
	for _, k := range r.pool.Keys() {
		r.store.Upsert("droxporter_remaining_limits_by_key", map[string]string{"key_type": k.KeyType, "timeframe": keypool.TimeframeMinute}, k.Remaining(keypool.TimeframeMinute))
		r.store.Upsert("droxporter_remaining_limits_by_key", map[string]string{"key_type": k.KeyType, "timeframe": keypool.TimeframeHour}, k.Remaining(keypool.TimeframeHour))

		status := "active"
		if k.Exceeded() {
			status = "exceeded"
		}
		if statusCounts[k.KeyType] == nil {
			statusCounts[k.KeyType] = make(map[string]int)
		}
		statusCounts[k.KeyType][status]++
	}
	for keyType, counts := range statusCounts {
		for _, status := range []string{"active", "exceeded"} {
			r.store.Upsert("droxporter_limits_status_count", map[string]string{"key_type": keyType, "status": status}, float64(counts[status]))
		}
	}
}

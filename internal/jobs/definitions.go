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

// Package jobs holds the declarative per-metric-family table the
// scheduler drives: which provider endpoint fragment to poll, which
// sub-types to fan out across, and how to shape a raw sample into Metric
// Store labels.
package jobs

// Kind identifies which Job Descriptor shape a Definition belongs to.
type Kind string

const (
	KindDropletList   Kind = "droplet_list"
	KindBandwidth     Kind = "bandwidth"
	KindCPU           Kind = "cpu"
	KindFilesystem    Kind = "filesystem"
	KindMemory        Kind = "memory"
	KindLoad          Kind = "load"
	KindSelfTelemetry Kind = "self_telemetry"
)

// Definition is one row of the metric-family table: spec.md §4.F.
type Definition struct {
	Kind Kind
	// Family is the configuration-facing family name (the metrics.<family>
	// key); StoreFamily gives the Metric Store name this job upserts into.
	Family string
	// Endpoint is the provider monitoring-metric kind fragment, e.g.
	// "bandwidth" in GET .../monitoring/metrics/droplet/bandwidth.
	Endpoint string
	// SubTypes enumerates the values fanned out across per droplet; a job
	// with no sub-types runs once per droplet instead.
	SubTypes []string
	// SubTypeLabel is the label key a sub-type value is reported under.
	SubTypeLabel string
	// DefaultInterval is used when the config omits metrics.<family>.interval.
	DefaultInterval string
}

// Table is the full set of periodic (non-droplet-list) job definitions,
// keyed by the configuration-facing family name, per spec.md §4.F.
var Table = map[string]Definition{
	"droplet_bandwidth": {
		Kind:            KindBandwidth,
		Family:          "droplet_bandwidth",
		Endpoint:        "bandwidth",
		SubTypes:        []string{"private_inbound", "private_outbound", "public_inbound", "public_outbound"},
		SubTypeLabel:    "type",
		DefaultInterval: "5m",
	},
	"droplet_cpu": {
		Kind:            KindCPU,
		Family:          "droplet_cpu",
		Endpoint:        "cpu",
		SubTypes:        []string{"usage"},
		SubTypeLabel:    "mode",
		DefaultInterval: "1m",
	},
	"droplet_filesystem": {
		Kind:            KindFilesystem,
		Family:          "droplet_filesystem",
		Endpoint:        "filesystem",
		SubTypes:        []string{"free", "size"},
		SubTypeLabel:    "type",
		DefaultInterval: "5m",
	},
	"droplet_memory": {
		Kind:            KindMemory,
		Family:          "droplet_memory",
		Endpoint:        "memory",
		SubTypes:        []string{"cached", "free", "total", "available"},
		SubTypeLabel:    "type",
		DefaultInterval: "1m",
	},
	"droplet_load": {
		Kind:            KindLoad,
		Family:          "droplet_load",
		Endpoint:        "load",
		SubTypes:        []string{"load_1", "load_5", "load_15"},
		SubTypeLabel:    "type",
		DefaultInterval: "1m",
	},
}

// Labels builds the Metric Store label set for one (droplet, sub_type)
// reading of def.
func (d Definition) Labels(dropletName, subType string) map[string]string {
	labels := map[string]string{"droplet": dropletName}
	if d.SubTypeLabel != "" && subType != "" {
		labels[d.SubTypeLabel] = subType
	}
	return labels
}

// StoreFamily is the name def's samples are upserted under — the
// configuration-facing Family name (used as the `metrics.<family>` key)
// carries the exporter's "droxporter_" namespace when it reaches the
// Metric Store.
func (d Definition) StoreFamily() string {
	return "droxporter_" + d.Family
}

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

package jobs

import "droxporter/internal/metricstore"

// MetricStoreFamilies returns the Declare-ready FamilyDef for every Metric
// Family this exporter knows about: the four droplet-list-sourced
// families, droplet_bandwidth (also droplet-list-sourced, inline), and the
// four periodic polling families.
func MetricStoreFamilies() []metricstore.FamilyDef {
	return []metricstore.FamilyDef{
		{Name: "droxporter_droplet_memory_settings", Help: "Droplet memory size in MB, as configured.", Type: metricstore.Gauge, Labels: []string{"droplet"}},
		{Name: "droxporter_droplet_vcpu_settings", Help: "Droplet vCPU count, as configured.", Type: metricstore.Gauge, Labels: []string{"droplet"}},
		{Name: "droxporter_droplet_disk_settings", Help: "Droplet disk size in GB, as configured.", Type: metricstore.Gauge, Labels: []string{"droplet"}},
		{Name: "droxporter_droplet_status", Help: "Droplet lifecycle status (1 for the droplet's current status).", Type: metricstore.Gauge, Labels: []string{"droplet", "status"}},
		{Name: "droxporter_droplet_bandwidth", Help: "Droplet network bandwidth in bytes/sec.", Type: metricstore.Gauge, Labels: []string{"droplet", "type"}},
		{Name: "droxporter_droplet_cpu", Help: "Droplet CPU usage percentage.", Type: metricstore.Gauge, Labels: []string{"droplet", "mode"}},
		{Name: "droxporter_droplet_filesystem", Help: "Droplet filesystem usage in bytes.", Type: metricstore.Gauge, Labels: []string{"droplet", "type"}},
		{Name: "droxporter_droplet_memory", Help: "Droplet memory usage in bytes.", Type: metricstore.Gauge, Labels: []string{"droplet", "type"}},
		{Name: "droxporter_droplet_load", Help: "Droplet load average.", Type: metricstore.Gauge, Labels: []string{"droplet", "type"}},
	}
}

// StatusLabels returns the label set for a droplet_status sample given the
// droplet's current status string: the gauge is 1 for the droplet's
// current status and the family carries no other values for that droplet,
// per the "one active status per droplet" shape implied by spec.md §3.
func StatusLabels(dropletName, status string) (map[string]string, float64) {
	return map[string]string{"droplet": dropletName, "status": status}, 1
}

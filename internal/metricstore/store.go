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

// Package metricstore holds the latest observed value for every
// (family, label-set) tuple and renders it as Prometheus exposition text.
// It wraps a private *prometheus.Registry so rendering reuses the
// ecosystem's own escaping and formatting rules (expfmt) instead of a
// hand-rolled text writer.
package metricstore

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Type is the Prometheus metric type a Family is declared with.
type Type int

const (
	Gauge Type = iota
	Counter
	Histogram
)

// FamilyDef declares one metric family: its name (before any configured
// prefix), help text, type, and ordered label keys.
type FamilyDef struct {
	Name    string
	Help    string
	Type    Type
	Labels  []string
	Buckets []float64 // only used when Type == Histogram
}

// Store is the thread-safe, label-indexed metric store (spec.md §4.A).
type Store struct {
	prefix       string
	globalLabels map[string]string

	registry *prometheus.Registry

	mu        sync.Mutex // guards the maps below; rendering never holds it
	defs      map[string]FamilyDef
	gauges    map[string]*prometheus.GaugeVec
	counters  map[string]*prometheus.CounterVec
	histos    map[string]*prometheus.HistogramVec
	// samples tracks canonical label sets per family purely so
	// DeleteByLabel can scan for a predicate match; client_golang has no
	// "delete where" primitive beyond exact/partial label equality.
	samples map[string]map[string]prometheus.Labels
}

// New constructs an empty Store. prefix is prepended to every family name
// when the family is declared (by Declare or by a first Upsert), never at
// render time; globalLabels are merged into every sample's label set
// (explicit labels passed to Upsert win on key conflict), per spec.md
// §4.A "Rendering rules".
func New(prefix string, globalLabels map[string]string) *Store {
	return &Store{
		prefix:       prefix,
		globalLabels: globalLabels,
		registry:     prometheus.NewRegistry(),
		defs:         make(map[string]FamilyDef),
		gauges:       make(map[string]*prometheus.GaugeVec),
		counters:     make(map[string]*prometheus.CounterVec),
		histos:       make(map[string]*prometheus.HistogramVec),
		samples:      make(map[string]map[string]prometheus.Labels),
	}
}

// Declare registers a family definition up front. Declaring is optional
// for Gauge families (Upsert will lazily declare a Gauge family the first
// time it's seen) but mandatory for Counter and Histogram families, since
// their shape (buckets, increment-only semantics) can't be inferred from a
// single Upsert call.
func (s *Store) Declare(def FamilyDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declareLocked(def)
}

func (s *Store) declareLocked(def FamilyDef) {
	name := s.prefix + def.Name
	allLabels := mergeLabelKeys(def.Labels, s.globalLabels)
	s.defs[def.Name] = def
	switch def.Type {
	case Counter:
		if _, ok := s.counters[def.Name]; ok {
			return
		}
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: def.Help}, allLabels)
		s.registry.MustRegister(cv)
		s.counters[def.Name] = cv
	case Histogram:
		if _, ok := s.histos[def.Name]; ok {
			return
		}
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: def.Help, Buckets: def.Buckets}, allLabels)
		s.registry.MustRegister(hv)
		s.histos[def.Name] = hv
	default:
		if _, ok := s.gauges[def.Name]; ok {
			return
		}
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: def.Help}, allLabels)
		s.registry.MustRegister(gv)
		s.gauges[def.Name] = gv
	}
	s.samples[def.Name] = make(map[string]prometheus.Labels)
}

// Upsert replaces the value for (family, labels), applying the configured
// prefix and global labels. A newer call with the same identity overwrites
// the older one (last-write-wins, spec.md §3).
func (s *Store) Upsert(family string, labels map[string]string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.defs[family]; !known {
		// Lazily declare a Gauge family from the label keys seen
		// on this first call.
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.declareLocked(FamilyDef{Name: family, Help: family, Type: Gauge, Labels: keys})
	}

	full := mergeLabelValues(labels, s.globalLabels)
	canon := canonicalLabels(full)

	gv, ok := s.gauges[family]
	if !ok {
		// Family was declared as Counter/Histogram; Upsert only applies to
		// Gauge-shaped last-value semantics.
		return
	}
	gv.With(prometheus.Labels(full)).Set(value)
	s.samples[family][canon] = prometheus.Labels(full)
}

// IncCounter adds delta to the counter family's series for labels,
// creating the series at 0 first if it doesn't yet exist. family must
// have been Declared with Type == Counter.
func (s *Store) IncCounter(family string, labels map[string]string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cv, ok := s.counters[family]
	if !ok {
		return
	}
	full := mergeLabelValues(labels, s.globalLabels)
	cv.With(prometheus.Labels(full)).Add(delta)
	s.samples[family][canonicalLabels(full)] = prometheus.Labels(full)
}

// ObserveHistogram records value into the histogram family's series for
// labels. family must have been Declared with Type == Histogram.
func (s *Store) ObserveHistogram(family string, labels map[string]string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hv, ok := s.histos[family]
	if !ok {
		return
	}
	full := mergeLabelValues(labels, s.globalLabels)
	hv.With(prometheus.Labels(full)).Observe(value)
	s.samples[family][canonicalLabels(full)] = prometheus.Labels(full)
}

// DeleteByLabel removes all Gauge-family samples whose label value at key
// matches predicate. Used by the droplet registry on swap to evict series
// for droplets that disappeared (spec.md §4.D).
func (s *Store) DeleteByLabel(family, key string, predicate func(value string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gv, ok := s.gauges[family]
	if !ok {
		return
	}
	set, ok := s.samples[family]
	if !ok {
		return
	}
	for canon, labels := range set {
		v, present := labels[key]
		if !present || !predicate(v) {
			continue
		}
		gv.Delete(labels)
		delete(set, canon)
	}
}

// Render produces the complete text-format exposition for every family
// that currently has at least one sample (families with zero samples are
// omitted automatically: client_golang's Gather skips Vec families with no
// child series).
func (s *Store) Render() ([]byte, error) {
	families, err := s.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("encode family %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

func mergeLabelKeys(explicit []string, global map[string]string) []string {
	seen := make(map[string]bool, len(explicit)+len(global))
	out := make([]string, 0, len(explicit)+len(global))
	for _, k := range explicit {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	globalKeys := make([]string, 0, len(global))
	for k := range global {
		globalKeys = append(globalKeys, k)
	}
	sort.Strings(globalKeys)
	for _, k := range globalKeys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// mergeLabelValues merges global labels under explicit ones — explicit
// labels win on key conflict, per spec.md §4.A.
func mergeLabelValues(explicit map[string]string, global map[string]string) map[string]string {
	out := make(map[string]string, len(explicit)+len(global))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}

// canonicalLabels formats labels sorted by key as k="v" (escaping \, ", and
// newline), joined by commas — the Store's internal identity key for a
// sample, per spec.md §4.A "Representation".
func canonicalLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(k)
		buf.WriteString(`="`)
		buf.WriteString(escapeLabelValue(labels[k]))
		buf.WriteByte('"')
	}
	return buf.String()
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

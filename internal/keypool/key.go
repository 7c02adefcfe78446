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

// Package keypool implements the per-API-key rate-limit governor: it holds
// one Key per configured API token, each with a "1min" and "1hour" bucket,
// and selects the best key within a group on every Reserve call.
package keypool

import "droxporter/internal/ratebucket"

const (
	// TimeframeMinute and TimeframeHour are the two bucket timeframes every
	// Key carries, per spec.md §3.
	TimeframeMinute = "1min"
	TimeframeHour   = "1hour"

	minuteCapacity = 250
	minuteRefill   = minuteCapacity / 60.0

	hourCapacity = 5000
	hourRefill   = hourCapacity / 3600.0
)

// Key is a provider API token and its live rate-limit budget. A single
// token may belong to several key groups; the bucket state lives here, on
// the token, not duplicated per group — groups are merely named views over
// a set of Keys (spec.md §9 "Key grouping without duplication").
type Key struct {
	Token   string
	KeyType string

	buckets map[string]*ratebucket.Bucket
}

// NewKey constructs a Key with freshly pre-filled 1min/1hour buckets.
// warmup, in (0,1], scales how much of each bucket's capacity is available
// immediately at startup (1.0 = full capacity, spec.md §4.B pre-fill); a
// value <= 0 or > 1 is treated as 1.0.
func NewKey(token, keyType string, warmup float64) *Key {
	if warmup <= 0 {
		warmup = 1
	}
	if warmup > 1 {
		warmup = 1
	}
	return &Key{
		Token:   token,
		KeyType: keyType,
		buckets: map[string]*ratebucket.Bucket{
			TimeframeMinute: ratebucket.New(minuteCapacity, minuteRefill, minuteCapacity*warmup),
			TimeframeHour:   ratebucket.New(hourCapacity, hourRefill, hourCapacity*warmup),
		},
	}
}

// MinRemaining returns the minimum Remaining() across all of the key's
// buckets — the comparison key used for best-key selection (spec.md §9).
func (k *Key) MinRemaining() float64 {
	min := k.buckets[TimeframeMinute].Remaining()
	if h := k.buckets[TimeframeHour].Remaining(); h < min {
		min = h
	}
	return min
}

// Exceeded reports whether the key's minimum remaining across buckets is
// below one full credit (spec.md §4.B "Observable state").
func (k *Key) Exceeded() bool {
	return k.MinRemaining() < 1.0
}

// Reserve attempts to deduct 1.0 from every bucket belonging to the key.
// It is all-or-nothing: if any bucket denies the reservation, buckets that
// already succeeded are compensated via Release so the key's state is as
// if Reserve had never been called.
func (k *Key) Reserve() bool {
	reserved := make([]*ratebucket.Bucket, 0, len(k.buckets))
	ok := true
	for _, tf := range []string{TimeframeMinute, TimeframeHour} {
		b := k.buckets[tf]
		if !b.Reserve() {
			ok = false
			break
		}
		reserved = append(reserved, b)
	}
	if !ok {
		for _, b := range reserved {
			b.Release()
		}
		return false
	}
	return true
}

// Remaining returns the current remaining credits for the named timeframe.
func (k *Key) Remaining(timeframe string) float64 {
	b, ok := k.buckets[timeframe]
	if !ok {
		return 0
	}
	return b.Remaining()
}

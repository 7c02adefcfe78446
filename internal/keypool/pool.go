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

package keypool

import (
	"errors"
)

// DefaultGroup is the fallback key group name, per spec.md §4.B.
const DefaultGroup = "default"

// ErrExhausted is returned when every key in the selected group (and, on
// fallback, the default group) is over budget.
var ErrExhausted = errors.New("limit exceeded")

// ErrNoKeys is returned when the selected group — and the default group —
// have no keys configured at all.
var ErrNoKeys = errors.New("key not found")

// Handle names the key that served a successful Reserve call.
type Handle struct {
	Token   string
	KeyType string
}

// Pool is the rate-limit governor: it holds every configured Key and
// resolves named key groups (views) over them.
type Pool struct {
	keys   []*Key
	groups map[string][]*Key
}

// NewPool builds a Pool from a set of keys and an explicit group
// membership map (group name -> token list). A token may appear in
// multiple groups; its Key (and therefore its buckets) is shared, never
// duplicated, across every group it belongs to (spec.md §9).
func NewPool(keys []*Key, groupTokens map[string][]string) *Pool {
	byToken := make(map[string]*Key, len(keys))
	for _, k := range keys {
		byToken[k.Token] = k
	}
	groups := make(map[string][]*Key, len(groupTokens))
	for group, tokens := range groupTokens {
		ks := make([]*Key, 0, len(tokens))
		for _, tok := range tokens {
			if k, ok := byToken[tok]; ok {
				ks = append(ks, k)
			}
		}
		groups[group] = ks
	}
	return &Pool{keys: keys, groups: groups}
}

// Reserve selects, within keyGroup, the key whose minimum remaining across
// buckets is maximal, and reserves 1.0 credit from every one of its
// buckets. If no key in keyGroup can supply it, Reserve falls back to
// DefaultGroup under the same rule. It fails with ErrNoKeys if both groups
// are empty, or ErrExhausted if every candidate key is over budget.
func (p *Pool) Reserve(keyGroup string) (Handle, error) {
	h, err := p.reserveFrom(keyGroup)
	if err == nil {
		return h, nil
	}
	if keyGroup == DefaultGroup {
		return Handle{}, err
	}

	h, fallbackErr := p.reserveFrom(DefaultGroup)
	if fallbackErr == nil {
		return h, nil
	}
	// Prefer reporting the primary group's own failure reason when it had
	// keys at all (ErrExhausted is more informative than "no keys" from an
	// unrelated empty default group).
	if len(p.groups[keyGroup]) > 0 {
		return Handle{}, err
	}
	return Handle{}, fallbackErr
}

func (p *Pool) reserveFrom(group string) (Handle, error) {
	candidates := p.groups[group]
	if len(candidates) == 0 {
		return Handle{}, ErrNoKeys
	}

	best := bestKey(candidates)
	if best == nil {
		return Handle{}, ErrExhausted
	}
	if !best.Reserve() {
		return Handle{}, ErrExhausted
	}
	return Handle{Token: best.Token, KeyType: best.KeyType}, nil
}

// bestKey returns the candidate whose minimum remaining across buckets is
// maximal, or nil if every candidate is already exceeded.
func bestKey(candidates []*Key) *Key {
	var best *Key
	var bestMin float64
	for _, k := range candidates {
		m := k.MinRemaining()
		if m < 1.0 {
			continue
		}
		if best == nil || m > bestMin {
			best = k
			bestMin = m
		}
	}
	return best
}

// Keys returns every key the pool was constructed with, for observability
// sweeps (self-telemetry) that need to report state per (key_type,
// timeframe/status).
func (p *Pool) Keys() []*Key {
	return p.keys
}

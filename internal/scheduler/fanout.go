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

package scheduler

import (
	"context"
	"sync"
)

// fanOut runs work once per item with bounded concurrency (a semaphore
// channel, per spec.md §4.E "small, explicit concurrency primitives"). A
// panic inside work is recovered and reported through onPanic rather than
// propagating, so one bad droplet never takes down the tick.
func fanOut[T any](ctx context.Context, items []T, parallelism int, work func(context.Context, T), onPanic func(item T, recovered any)) {
	if parallelism <= 0 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil && onPanic != nil {
					onPanic(item, r)
				}
			}()
			work(ctx, item)
		}(item)
	}
	wg.Wait()
}

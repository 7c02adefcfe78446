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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunPeriodic_FiresOnSchedule(t *testing.T) {
	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now().Add(-10 * time.Millisecond)

	go func() {
		time.Sleep(55 * time.Millisecond)
		cancel()
	}()

	runPeriodic(ctx, start, 10*time.Millisecond, func(ctx context.Context) {
		ticks.Add(1)
	}, nil)

	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
}

func TestRunPeriodic_SkipsInsteadOfQueueingWhenTickStillRunning(t *testing.T) {
	var started, skipped atomic.Int32
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()

	go func() {
		time.Sleep(45 * time.Millisecond)
		close(release)
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	runPeriodic(ctx, start, 10*time.Millisecond, func(ctx context.Context) {
		if started.Add(1) == 1 {
			<-release
		}
	}, func() {
		skipped.Add(1)
	})

	assert.Greater(t, skipped.Load(), int32(0))
}

func TestRunPeriodic_WaitsForInFlightTickBeforeReturningOnCancel(t *testing.T) {
	var finished atomic.Bool
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()

	done := make(chan struct{})
	go func() {
		runPeriodic(ctx, start, 10*time.Millisecond, func(ctx context.Context) {
			<-release
			finished.Store(true)
		}, nil)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
		t.Fatal("runPeriodic returned before the in-flight tick finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
	assert.True(t, finished.Load())
}

// Copyright 2025 Blink Labs Software
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

package ledger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestScheduler_RegistersAndRunsTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	var counter atomic.Int32
	timer := NewScheduler(10 * time.Millisecond)
	timer.Register(3, func(context.Context) {
		counter.Add(1)
	}, nil)
	timer.Start()
	time.Sleep(100 * time.Millisecond)
	timer.Stop()
	assert.GreaterOrEqual(t, counter.Load(), int32(2))
}

func TestScheduler_ChangeInterval(t *testing.T) {
	defer goleak.VerifyNone(t)
	var counter atomic.Int32
	timer := NewScheduler(50 * time.Millisecond)
	timer.Register(1, func(context.Context) {
		counter.Add(1)
	}, nil)
	timer.Start()
	defer timer.Stop()

	time.Sleep(120 * time.Millisecond)
	beforeChange := counter.Load()
	assert.GreaterOrEqual(t, beforeChange, int32(2))

	timer.ChangeInterval(200 * time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	afterChange := counter.Load() - beforeChange
	assert.GreaterOrEqual(t, afterChange, int32(1))
	assert.LessOrEqual(t, afterChange, int32(3))
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	defer goleak.VerifyNone(t)
	var skipped atomic.Int32
	timer := NewScheduler(10 * time.Millisecond)
	timer.Register(
		1,
		func(ctx context.Context) {
			select {
			case <-ctx.Done():
			case <-time.After(80 * time.Millisecond):
			}
		},
		func() {
			skipped.Add(1)
		},
	)
	timer.Start()
	time.Sleep(150 * time.Millisecond)
	timer.Stop()
	assert.GreaterOrEqual(t, skipped.Load(), int32(3))
}

func TestScheduler_StopCancelsTasks(t *testing.T) {
	defer goleak.VerifyNone(t)
	started := make(chan struct{})
	var cancelled atomic.Bool
	timer := NewScheduler(5 * time.Millisecond)
	timer.Register(1, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	}, nil)
	timer.Start()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task did not start")
	}
	timer.Stop()
	assert.True(t, cancelled.Load())
	// Stop is idempotent
	timer.Stop()
}

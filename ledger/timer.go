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
	"sync"
	"sync/atomic"
	"time"
)

// ScheduledTask runs every interval ticks. A tick that finds the previous
// run still in progress is skipped and reported through skipped.
type ScheduledTask struct {
	task              func(context.Context)
	skipped           func()
	running           atomic.Bool
	interval          int
	ticksSinceLastRun int
}

// Scheduler drives periodic work such as sealing rounds and reconciliation
// sweeps from a single ticker
type Scheduler struct {
	ctx                context.Context
	cancel             context.CancelFunc
	ticker             *time.Ticker
	quit               chan struct{}
	updateIntervalChan chan time.Duration
	tasks              []*ScheduledTask
	interval           time.Duration
	wg                 sync.WaitGroup
	mutex              sync.Mutex
	startOnce          sync.Once
	stopOnce           sync.Once
}

func NewScheduler(interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:                ctx,
		cancel:             cancel,
		interval:           interval,
		quit:               make(chan struct{}),
		updateIntervalChan: make(chan time.Duration),
	}
}

// Start the ticker goroutine. Calling Start again has no effect.
func (st *Scheduler) Start() {
	st.startOnce.Do(func() {
		st.ticker = time.NewTicker(st.interval)
		st.wg.Add(1)
		go st.run()
	})
}

func (st *Scheduler) run() {
	defer st.wg.Done()
	for {
		select {
		case <-st.ticker.C:
			st.tick()
		case newInterval := <-st.updateIntervalChan:
			st.mutex.Lock()
			st.ticker.Reset(newInterval)
			st.interval = newInterval
			st.mutex.Unlock()
		case <-st.quit:
			st.ticker.Stop()
			return
		}
	}
}

func (st *Scheduler) tick() {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	for _, task := range st.tasks {
		task.ticksSinceLastRun++
		if task.ticksSinceLastRun < task.interval {
			continue
		}
		task.ticksSinceLastRun = 0
		if !task.running.CompareAndSwap(false, true) {
			if task.skipped != nil {
				task.skipped()
			}
			continue
		}
		st.wg.Add(1)
		go func(task *ScheduledTask) {
			defer st.wg.Done()
			defer task.running.Store(false)
			task.task(st.ctx)
		}(task)
	}
}

// Register adds a task that runs every interval ticks. skipped may be nil.
func (st *Scheduler) Register(
	interval int,
	task func(context.Context),
	skipped func(),
) {
	if interval < 1 {
		interval = 1
	}
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.tasks = append(st.tasks, &ScheduledTask{
		interval: interval,
		task:     task,
		skipped:  skipped,
	})
}

// ChangeInterval updates the tick interval of the Scheduler at runtime.
func (st *Scheduler) ChangeInterval(newInterval time.Duration) {
	select {
	case st.updateIntervalChan <- newInterval:
	default:
	}
}

// Stop cancels running tasks and waits for them to return
func (st *Scheduler) Stop() {
	st.stopOnce.Do(func() {
		st.cancel()
		close(st.quit)
		st.wg.Wait()
	})
}

/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package runner drives periodic work on a hot-reloadable interval.
// The mirror server runs one Runner per control loop: frame capture,
// segment rotation, QoS optimization, and the heartbeat sweep.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/mirrord/pkg/logger"
)

// Task is one unit of periodic work. Errors are logged, not fatal;
// the runner keeps ticking.
type Task func(ctx context.Context) error

// Runner executes a Task on a fixed interval until stopped. The
// interval can be changed while running via Reload.
type Runner struct {
	name     string
	interval time.Duration
	task     Task

	clock    Clock
	ticker   Ticker
	logger   logger.Logger
	done     chan struct{}
	reloadCh chan time.Duration

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a runner. A nil clock selects the real clock.
func New(name string, interval time.Duration, task Task, clock Clock, log logger.Logger) *Runner {
	if clock == nil {
		clock = realClock{}
	}

	return &Runner{
		name:     name,
		interval: interval,
		task:     task,
		clock:    clock,
		logger:   log,
		done:     make(chan struct{}),
		reloadCh: make(chan time.Duration, 1),
	}
}

// Start runs the tick loop until the context is canceled or Stop is
// called. Ticks execute the task inline so consecutive runs never
// overlap; a slow task delays later ticks rather than racing them.
func (r *Runner) Start(ctx context.Context) error {
	r.wg.Add(1)
	defer r.wg.Done()

	r.ticker = r.clock.Ticker(r.interval)

	defer func() {
		if r.ticker != nil {
			r.ticker.Stop()
		}
	}()

	r.logger.Info().Str("runner", r.name).Dur("interval", r.interval).Msg("Starting runner")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		case <-r.ticker.Chan():
			if err := r.task(ctx); err != nil {
				r.logger.Error().Str("runner", r.name).Err(err).Msg("Task failed")
			}
		case newInterval := <-r.reloadCh:
			if r.ticker != nil {
				r.ticker.Stop()
			}

			r.interval = newInterval
			r.ticker = r.clock.Ticker(newInterval)
			r.logger.Info().Str("runner", r.name).Dur("interval", newInterval).Msg("Interval hot-reloaded")
		}
	}
}

// Stop signals the loop to exit and waits until the in-flight task, if
// any, has finished. After Stop returns the task will not run again.
func (r *Runner) Stop() {
	r.closeOnce.Do(func() {
		close(r.done)
	})

	r.wg.Wait()
}

// Reload requests a new tick interval. Non-blocking; a queued value
// that was never applied is replaced by the newest one.
func (r *Runner) Reload(interval time.Duration) {
	select {
	case <-r.done:
		return
	default:
	}

	select {
	case <-r.reloadCh:
	default:
	}

	select {
	case r.reloadCh <- interval:
	default:
	}
}

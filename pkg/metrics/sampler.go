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

// Package metrics samples the live conditions fed to the QoS controller:
// achieved fps and processing time from the capture pipeline, bandwidth
// and latency estimated from host counters.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
)

// baseLatency is the latency floor (milliseconds) reported on an
// unloaded host; CPU pressure scales it up.
const baseLatency = 20.0

// CaptureStatsSource supplies the pipeline half of a snapshot.
// Implemented by capture.Engine.
type CaptureStatsSource interface {
	Stats() models.CaptureStats
}

// netCounters abstracts gopsutil for tests.
type netCounters func(ctx context.Context, pernic bool) ([]psnet.IOCountersStat, error)

// cpuPercent abstracts gopsutil for tests.
type cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)

// Sampler produces MetricsSnapshots. Bandwidth is the byte rate observed
// on the host NICs since the previous sample, so the first call reports
// zero bandwidth.
type Sampler struct {
	mu sync.Mutex

	source CaptureStatsSource
	logger logger.Logger

	counters netCounters
	percent  cpuPercent

	lastBytes   uint64
	lastSampled time.Time
}

// NewSampler builds a sampler over the real host counters.
func NewSampler(source CaptureStatsSource, log logger.Logger) *Sampler {
	return &Sampler{
		source:   source,
		logger:   log,
		counters: psnet.IOCountersWithContext,
		percent:  cpu.PercentWithContext,
	}
}

// Snapshot collects one metrics observation.
func (s *Sampler) Snapshot(ctx context.Context) models.MetricsSnapshot {
	stats := s.source.Stats()

	snapshot := models.MetricsSnapshot{
		FPS:            stats.FPS,
		ProcessingTime: stats.ProcessingTime,
		Latency:        baseLatency,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if counters, err := s.counters(ctx, false); err == nil && len(counters) > 0 {
		total := counters[0].BytesSent + counters[0].BytesRecv

		if s.lastBytes > 0 && now.After(s.lastSampled) {
			elapsed := now.Sub(s.lastSampled).Seconds()
			snapshot.Bandwidth = float64(total-s.lastBytes) / elapsed
		}

		s.lastBytes = total
		s.lastSampled = now
	} else if err != nil {
		s.logger.Debug().Err(err).Msg("Net counters unavailable")
	}

	if loads, err := s.percent(ctx, 0, false); err == nil && len(loads) > 0 {
		// CPU saturation shows up as queueing before encode; fold it
		// into the latency estimate.
		snapshot.Latency = baseLatency * (1 + loads[0]/100)
	} else if err != nil {
		s.logger.Debug().Err(err).Msg("CPU load unavailable")
	}

	return snapshot
}

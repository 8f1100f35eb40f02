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

// Package qos implements the closed-loop controller that keeps frame rate
// and encode quality within bounds under observed load.
package qos

import (
	"sync"
	"time"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
)

// CaptureTarget receives frame-rate and quality pushes.
// Implemented by capture.Engine.
type CaptureTarget interface {
	UpdateSettings(update models.CaptureSettingsUpdate) error
}

// StreamTarget receives quality pushes. Implemented by hls.Store.
type StreamTarget interface {
	UpdateSettings(update models.StreamSettingsUpdate) error
}

// Hard policy bounds on the frame rate, applied regardless of the
// configured target.
const (
	MinFrameRate = 15
	MaxFrameRate = 30
)

const (
	// fpsShortfall is the fraction under target at which quality is
	// stepped down.
	fpsShortfall = 0.15
	// qualityStep is the per-optimization quality adjustment.
	qualityStep = 0.05
	// frameRateStep is the per-optimization frame-rate adjustment.
	frameRateStep = 5
	// overloadProcessing is the per-frame processing time (seconds)
	// treated as encoder overload at 30fps.
	overloadProcessing = 0.033
	// overloadLatency is the network latency (milliseconds) treated as
	// congestion.
	overloadLatency = 150
)

// Options configures Initialize. Zero values fall back to defaults.
type Options struct {
	TargetFPS      int
	TargetQuality  float64
	MinQuality     float64
	MaxQuality     float64
	UpdateInterval time.Duration
}

// Controller recomputes quality and frame rate from the latest metrics
// snapshot and pushes the results downstream.
type Controller struct {
	mu sync.Mutex

	capture CaptureTarget
	stream  StreamTarget
	logger  logger.Logger

	targetFPS      int
	targetQuality  float64
	minQuality     float64
	maxQuality     float64
	updateInterval time.Duration

	optimizing bool
	metrics    models.MetricsSnapshot

	currentQuality   float64
	currentFrameRate int

	optimizationCount uint64
}

// NewController wires the controller to its two downstream targets.
func NewController(capture CaptureTarget, stream StreamTarget, log logger.Logger) *Controller {
	return &Controller{
		capture: capture,
		stream:  stream,
		logger:  log,
	}
}

// Initialize applies bounds and targets. Idempotent.
func (c *Controller) Initialize(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.targetFPS = opts.TargetFPS
	if c.targetFPS <= 0 {
		c.targetFPS = 30
	}

	c.targetQuality = opts.TargetQuality
	if c.targetQuality <= 0 {
		c.targetQuality = 0.8
	}

	c.minQuality = opts.MinQuality
	if c.minQuality <= 0 {
		c.minQuality = 0.4
	}

	c.maxQuality = opts.MaxQuality
	if c.maxQuality <= 0 {
		c.maxQuality = 1.0
	}

	c.updateInterval = opts.UpdateInterval
	if c.updateInterval <= 0 {
		c.updateInterval = 5 * time.Second
	}

	c.optimizing = false
	c.currentQuality = c.targetQuality
	c.currentFrameRate = c.targetFPS
}

// Start begins accepting optimization ticks.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.optimizing = true
}

// Stop halts optimization. Already-pushed settings stay in effect.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.optimizing = false
}

// IsOptimizing reports whether the controller is between Start and Stop.
func (c *Controller) IsOptimizing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.optimizing
}

// UpdateMetrics stores the latest snapshot. Pure state update: nothing
// is pushed downstream until an optimize call.
func (c *Controller) UpdateMetrics(snapshot models.MetricsSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics = snapshot
}

// UpdateInterval is the optimization tick period.
func (c *Controller) UpdateInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.updateInterval <= 0 {
		return 5 * time.Second
	}

	return c.updateInterval
}

// OptimizeQuality recomputes encode quality from the latest snapshot and
// pushes it to both the capture engine and the segment store. The count
// only advances when both pushes succeed.
func (c *Controller) OptimizeQuality() error {
	c.mu.Lock()

	quality := c.nextQualityLocked()
	capture := c.capture
	stream := c.stream
	c.mu.Unlock()

	if err := capture.UpdateSettings(models.CaptureSettingsUpdate{Quality: &quality}); err != nil {
		return err
	}

	if err := stream.UpdateSettings(models.StreamSettingsUpdate{Quality: &quality}); err != nil {
		return err
	}

	c.mu.Lock()
	c.currentQuality = quality
	c.optimizationCount++
	count := c.optimizationCount
	c.mu.Unlock()

	c.logger.Debug().
		Float64("quality", quality).
		Uint64("optimization_count", count).
		Msg("Quality optimized")

	return nil
}

// OptimizeFrameRate recomputes the frame rate from the latest snapshot
// and pushes it to the capture engine, clamped to [15,30] fps.
func (c *Controller) OptimizeFrameRate() error {
	c.mu.Lock()

	frameRate := c.nextFrameRateLocked()
	capture := c.capture
	c.mu.Unlock()

	if err := capture.UpdateSettings(models.CaptureSettingsUpdate{FrameRate: &frameRate}); err != nil {
		return err
	}

	c.mu.Lock()
	c.currentFrameRate = frameRate
	c.optimizationCount++
	count := c.optimizationCount
	c.mu.Unlock()

	c.logger.Debug().
		Int("frame_rate", frameRate).
		Uint64("optimization_count", count).
		Msg("Frame rate optimized")

	return nil
}

// nextQualityLocked derives the next quality value. Caller holds c.mu.
func (c *Controller) nextQualityLocked() float64 {
	quality := c.currentQuality

	if c.underloadLocked() {
		quality -= qualityStep
	} else if quality < c.targetQuality {
		quality += qualityStep
		if quality > c.targetQuality {
			quality = c.targetQuality
		}
	}

	return clampFloat(quality, c.minQuality, c.maxQuality)
}

// nextFrameRateLocked derives the next frame rate. Caller holds c.mu.
func (c *Controller) nextFrameRateLocked() int {
	frameRate := c.currentFrameRate

	if c.underloadLocked() {
		frameRate -= frameRateStep
	} else if frameRate < c.targetFPS {
		frameRate += frameRateStep
		if frameRate > c.targetFPS {
			frameRate = c.targetFPS
		}
	}

	return clampInt(frameRate, MinFrameRate, MaxFrameRate)
}

// underloadLocked reports whether the latest snapshot indicates the
// pipeline cannot sustain the current settings. Caller holds c.mu.
func (c *Controller) underloadLocked() bool {
	if c.metrics.FPS > 0 && c.metrics.FPS < float64(c.targetFPS)*(1-fpsShortfall) {
		return true
	}

	if c.metrics.ProcessingTime > overloadProcessing {
		return true
	}

	return c.metrics.Latency > overloadLatency
}

// OptimizationStats returns the controller's externally visible state.
func (c *Controller) OptimizationStats() models.OptimizationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return models.OptimizationStats{
		CurrentFPS:            c.metrics.FPS,
		CurrentQuality:        c.currentQuality,
		CurrentProcessingTime: c.metrics.ProcessingTime,
		CurrentBandwidth:      c.metrics.Bandwidth,
		CurrentLatency:        c.metrics.Latency,
		OptimizationCount:     c.optimizationCount,
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

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

// Package capture owns the screen capture source and the frame processor
// and turns raw display frames into encoded frames on demand.
package capture

import (
	"fmt"
	"time"

	"sync"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
)

const (
	defaultFrameRate = 30
	defaultQuality   = 0.8
)

// Engine drives a Source through a Processor under the current
// CaptureSettings. All methods are safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	source      Source
	processor   *Processor
	settings    models.CaptureSettings
	initialized bool
	capturing   bool
	logger      logger.Logger
}

// NewEngine wires a capture source to a fresh processor.
func NewEngine(source Source, log logger.Logger) *Engine {
	return &Engine{
		source:    source,
		processor: NewProcessor(),
		logger:    log,
	}
}

// Initialize applies the default settings and marks the engine ready.
// Idempotent; does not start capturing.
func (e *Engine) Initialize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return
	}

	e.settings = models.CaptureSettings{
		FrameRate: defaultFrameRate,
		Quality:   defaultQuality,
	}
	e.initialized = true
	e.capturing = false

	e.logger.Info().
		Int("frame_rate", e.settings.FrameRate).
		Float64("quality", e.settings.Quality).
		Msg("Capture engine initialized")
}

// Start arms the processor and begins accepting capture calls.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized || e.capturing {
		return ErrNotReady
	}

	e.processor.Initialize()

	if err := e.processor.SetQuality(e.settings.Quality); err != nil {
		return err
	}

	e.capturing = true

	e.logger.Info().Msg("Capture started")

	return nil
}

// Stop tears down the processor and releases the source's native
// resources. No-op when not capturing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.capturing {
		return
	}

	e.processor.Cleanup()
	e.capturing = false

	e.logger.Info().Msg("Capture stopped")
}

// Close stops capturing and releases the source's native handles. The
// engine cannot be restarted afterwards.
func (e *Engine) Close() error {
	e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.source.Close()
}

// IsCapturing reports whether Start has been called without a matching Stop.
func (e *Engine) IsCapturing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.capturing
}

// CaptureFrame acquires one raw frame and runs it through the processor.
func (e *Engine) CaptureFrame() (*models.ProcessedFrame, error) {
	e.mu.Lock()

	if !e.capturing {
		e.mu.Unlock()
		return nil, ErrNotCapturing
	}

	source := e.source
	processor := e.processor
	e.mu.Unlock()

	raw, err := source.Grab()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	frame, err := processor.ProcessFrame(raw)
	if err != nil {
		return nil, err
	}

	return frame, nil
}

// UpdateSettings applies a partial settings update. Out-of-range values
// are rejected and the previous settings stay in effect.
func (e *Engine) UpdateSettings(update models.CaptureSettingsUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if update.FrameRate != nil && *update.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate %d", ErrInvalidSettings, *update.FrameRate)
	}

	if update.Quality != nil && (*update.Quality < 0 || *update.Quality > 1) {
		return fmt.Errorf("%w: quality %f", ErrInvalidSettings, *update.Quality)
	}

	if update.FrameRate != nil {
		e.settings.FrameRate = *update.FrameRate
	}

	if update.Quality != nil {
		e.settings.Quality = *update.Quality

		if err := e.processor.SetQuality(*update.Quality); err != nil {
			return err
		}
	}

	e.logger.Debug().
		Int("frame_rate", e.settings.FrameRate).
		Float64("quality", e.settings.Quality).
		Msg("Capture settings updated")

	return nil
}

// Settings returns the current settings snapshot.
func (e *Engine) Settings() models.CaptureSettings {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.settings
}

// FrameInterval is the capture tick period implied by the current
// frame rate.
func (e *Engine) FrameInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settings.FrameRate <= 0 {
		return time.Second / defaultFrameRate
	}

	return time.Second / time.Duration(e.settings.FrameRate)
}

// Stats merges the processor's rolling stats with the current settings.
func (e *Engine) Stats() models.CaptureStats {
	e.mu.Lock()
	settings := e.settings
	processor := e.processor
	e.mu.Unlock()

	stats := processor.Stats()
	stats.FrameRate = settings.FrameRate
	stats.Quality = settings.Quality

	return stats
}

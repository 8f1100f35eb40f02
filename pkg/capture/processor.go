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

package capture

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/carverauto/mirrord/pkg/models"
)

// statsAlpha is the smoothing factor for the exponential moving averages
// of fps and processing time. FrameCount stays an exact running total.
const statsAlpha = 0.2

// Processor encodes raw frames and keeps rolling performance statistics.
type Processor struct {
	mu          sync.Mutex
	initialized bool
	quality     float64

	frameCount     uint64
	fps            float64
	processingTime float64
	lastFrameAt    time.Time
}

// NewProcessor returns an uninitialized processor. ProcessFrame fails
// until Initialize is called.
func NewProcessor() *Processor {
	return &Processor{quality: 0.8}
}

// Initialize arms the processor. Safe to call repeatedly.
func (p *Processor) Initialize() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initialized = true
}

// Cleanup disarms the processor and drops its timing state. Counters are
// kept so stats remain meaningful across restarts.
func (p *Processor) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initialized = false
	p.lastFrameAt = time.Time{}
}

// IsInitialized reports whether the processor is armed.
func (p *Processor) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.initialized
}

// SetQuality updates the encode quality used for subsequent frames.
func (p *Processor) SetQuality(quality float64) error {
	if quality < 0 || quality > 1 {
		return fmt.Errorf("%w: quality %f outside [0,1]", ErrInvalidSettings, quality)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.quality = quality

	return nil
}

// ProcessFrame encodes one raw frame and updates the rolling stats.
func (p *Processor) ProcessFrame(raw *models.RawFrame) (*models.ProcessedFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, ErrNotInitialized
	}

	if raw == nil || raw.Image == nil {
		return nil, ErrInvalidInput
	}

	start := time.Now()

	var buf bytes.Buffer

	opts := &jpeg.Options{Quality: jpegQuality(p.quality)}
	if err := jpeg.Encode(&buf, raw.Image, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	elapsed := time.Since(start).Seconds()

	p.frameCount++
	p.observe(elapsed, start)

	return &models.ProcessedFrame{
		Data:       buf.Bytes(),
		CapturedAt: raw.CapturedAt,
		Sequence:   p.frameCount,
	}, nil
}

// Stats returns the rolling stats snapshot.
func (p *Processor) Stats() models.CaptureStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return models.CaptureStats{
		FPS:            p.fps,
		FrameCount:     p.frameCount,
		ProcessingTime: p.processingTime,
	}
}

// observe folds one frame observation into the moving averages.
// Caller holds p.mu.
func (p *Processor) observe(elapsed float64, now time.Time) {
	if p.processingTime == 0 {
		p.processingTime = elapsed
	} else {
		p.processingTime = statsAlpha*elapsed + (1-statsAlpha)*p.processingTime
	}

	if !p.lastFrameAt.IsZero() {
		if gap := now.Sub(p.lastFrameAt).Seconds(); gap > 0 {
			instant := 1 / gap
			if p.fps == 0 {
				p.fps = instant
			} else {
				p.fps = statsAlpha*instant + (1-statsAlpha)*p.fps
			}
		}
	}

	p.lastFrameAt = now
}

func jpegQuality(quality float64) int {
	q := int(quality * 100)
	if q < 1 {
		q = 1
	}

	if q > 100 {
		q = 100
	}

	return q
}

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
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/carverauto/mirrord/pkg/models"
)

// Source is the raw frame capability behind the engine. Implementations
// are the OS-specific screen grabber in production and a test double in
// tests.
type Source interface {
	// Grab acquires one raw frame from the display.
	Grab() (*models.RawFrame, error)
	// Close releases any native handles held by the source.
	Close() error
}

// DisplaySource is a software display source producing deterministic
// frames. It stands in for an OS screen grabber on headless hosts and in
// development.
type DisplaySource struct {
	mu     sync.Mutex
	width  int
	height int
	tick   uint64
	closed bool
}

// NewDisplaySource returns a source producing width x height frames.
func NewDisplaySource(width, height int) *DisplaySource {
	if width <= 0 {
		width = 1280
	}

	if height <= 0 {
		height = 720
	}

	return &DisplaySource{width: width, height: height}
}

func (d *DisplaySource) Grab() (*models.RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrNotInitialized
	}

	d.tick++

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	shade := uint8(d.tick % 256)

	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x % 256),
				G: uint8(y % 256),
				B: shade,
				A: 255,
			})
		}
	}

	return &models.RawFrame{Image: img, CapturedAt: time.Now()}, nil
}

func (d *DisplaySource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}

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

// Package models defines the shared data types for mirrord.
package models

import (
	"image"
	"time"
)

// CaptureSettings is the active frame-rate/quality pair read by the
// capture engine on every tick and mutated by the QoS controller.
type CaptureSettings struct {
	FrameRate int     `json:"frame_rate"`
	Quality   float64 `json:"quality"`
}

// CaptureSettingsUpdate is a partial settings update. Nil fields are
// left unchanged.
type CaptureSettingsUpdate struct {
	FrameRate *int     `json:"frame_rate,omitempty"`
	Quality   *float64 `json:"quality,omitempty"`
}

// StreamSettingsUpdate is a partial update for the segment store. It only
// affects segments created after the call.
type StreamSettingsUpdate struct {
	Quality         *float64       `json:"quality,omitempty"`
	SegmentDuration *time.Duration `json:"segment_duration,omitempty"`
}

// RawFrame is one frame as produced by a capture source, before encoding.
type RawFrame struct {
	Image      image.Image
	CapturedAt time.Time
}

// ProcessedFrame is an encoded frame. It is produced by the capture
// engine and consumed exactly once by the segment store.
type ProcessedFrame struct {
	Data       []byte
	CapturedAt time.Time
	Sequence   uint64
}

// Segment is one finalized media segment on disk. Immutable once created.
type Segment struct {
	ID        uint64    `json:"id"`
	Path      string    `json:"path"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

// CaptureStats is the rolling view of the frame pipeline merged with the
// current settings.
type CaptureStats struct {
	FPS            float64 `json:"fps"`
	FrameCount     uint64  `json:"frame_count"`
	ProcessingTime float64 `json:"processing_time"`
	FrameRate      int     `json:"frame_rate"`
	Quality        float64 `json:"quality"`
}

// StreamStats extends capture stats with the current manifest length.
type StreamStats struct {
	FPS            float64 `json:"fps"`
	FrameCount     uint64  `json:"frame_count"`
	ProcessingTime float64 `json:"processing_time"`
	SegmentCount   int     `json:"segment_count"`
}

// MetricsSnapshot is the most-recent observation fed to the QoS
// controller. Most-recent-wins; no history is retained.
type MetricsSnapshot struct {
	FPS            float64 `json:"fps"`
	ProcessingTime float64 `json:"processing_time"`
	Bandwidth      float64 `json:"bandwidth"`
	Latency        float64 `json:"latency"`
}

// OptimizationStats is the QoS controller's externally visible state.
type OptimizationStats struct {
	CurrentFPS            float64 `json:"current_fps"`
	CurrentQuality        float64 `json:"current_quality"`
	CurrentProcessingTime float64 `json:"current_processing_time"`
	CurrentBandwidth      float64 `json:"current_bandwidth"`
	CurrentLatency        float64 `json:"current_latency"`
	OptimizationCount     uint64  `json:"optimization_count"`
}

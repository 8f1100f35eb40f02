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

// Package config loads and validates the mirrord configuration from a
// JSON file with environment variable overrides.
package config

import (
	"errors"
	"fmt"

	"github.com/carverauto/mirrord/pkg/logger"
)

const envPrefix = "MIRRORD_"

var (
	ErrInvalidPort            = errors.New("server port must be between 1 and 65535")
	ErrInvalidFrameRate       = errors.New("frame rate must be positive")
	ErrInvalidQuality         = errors.New("quality must be within [0,1]")
	ErrInvalidSegmentDuration = errors.New("segment duration must be positive")
	ErrInvalidMaxSegments     = errors.New("max segments must be positive")
	ErrInvalidTargetFPS       = errors.New("target fps must be positive")
	ErrInvalidQualityBounds   = errors.New("quality bounds must satisfy 0 <= min <= max <= 1")
	ErrInvalidUpdateInterval  = errors.New("update interval must be positive")
	ErrMissingBucket          = errors.New("presence bucket must not be empty")
)

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`
}

// StreamingConfig holds the capture and segmentation defaults.
type StreamingConfig struct {
	FrameRate       int     `json:"frame_rate"`
	Quality         float64 `json:"quality"`
	SegmentDuration int     `json:"segment_duration"`
	MaxSegments     int     `json:"max_segments"`
	OutputDir       string  `json:"output_dir"`
}

// OptimizationConfig holds the QoS controller bounds and cadence.
type OptimizationConfig struct {
	TargetFPS      int     `json:"target_fps"`
	TargetQuality  float64 `json:"target_quality"`
	MinQuality     float64 `json:"min_quality"`
	MaxQuality     float64 `json:"max_quality"`
	UpdateInterval int     `json:"update_interval"`
}

// PresenceConfig points at the NATS-backed presence directory.
type PresenceConfig struct {
	NatsURL string `json:"nats_url"`
	Bucket  string `json:"bucket"`
}

// Config is the full mirrord configuration.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Streaming    StreamingConfig    `json:"streaming"`
	Optimization OptimizationConfig `json:"optimization"`
	Presence     PresenceConfig     `json:"presence"`
	Logging      logger.Config      `json:"logging"`
}

// Default returns the configuration used when a field is absent from the
// config file and no environment override is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Streaming: StreamingConfig{
			FrameRate:       30,
			Quality:         0.8,
			SegmentDuration: 2,
			MaxSegments:     10,
		},
		Optimization: OptimizationConfig{
			TargetFPS:      30,
			TargetQuality:  0.8,
			MinQuality:     0.4,
			MaxQuality:     1.0,
			UpdateInterval: 5,
		},
		Presence: PresenceConfig{
			NatsURL: "nats://127.0.0.1:4222",
			Bucket:  "mirrord-devices",
		},
		Logging: *logger.DefaultConfig(),
	}
}

// Validate implements the Validator contract checked after loading.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Streaming.FrameRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrameRate, c.Streaming.FrameRate)
	}

	if c.Streaming.Quality < 0 || c.Streaming.Quality > 1 {
		return fmt.Errorf("%w: got %f", ErrInvalidQuality, c.Streaming.Quality)
	}

	if c.Streaming.SegmentDuration <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSegmentDuration, c.Streaming.SegmentDuration)
	}

	if c.Streaming.MaxSegments <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSegments, c.Streaming.MaxSegments)
	}

	if c.Optimization.TargetFPS <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTargetFPS, c.Optimization.TargetFPS)
	}

	if err := validateQualityBounds(c.Optimization); err != nil {
		return err
	}

	if c.Optimization.UpdateInterval <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidUpdateInterval, c.Optimization.UpdateInterval)
	}

	if c.Presence.Bucket == "" {
		return ErrMissingBucket
	}

	return nil
}

func validateQualityBounds(o OptimizationConfig) error {
	if o.MinQuality < 0 || o.MaxQuality > 1 || o.MinQuality > o.MaxQuality {
		return fmt.Errorf("%w: min %f max %f", ErrInvalidQualityBounds, o.MinQuality, o.MaxQuality)
	}

	if o.TargetQuality < o.MinQuality || o.TargetQuality > o.MaxQuality {
		return fmt.Errorf("%w: target %f outside [%f,%f]",
			ErrInvalidQualityBounds, o.TargetQuality, o.MinQuality, o.MaxQuality)
	}

	return nil
}

// Validator is implemented by configurations that can check themselves.
type Validator interface {
	Validate() error
}

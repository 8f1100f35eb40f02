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

// Package hls converts the frame stream into time-bounded segment files
// and maintains a bounded-window playlist over them.
package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
)

// FrameSource supplies one encoded frame per segment and the upstream
// capture statistics. Implemented by capture.Engine.
type FrameSource interface {
	CaptureFrame() (*models.ProcessedFrame, error)
	Stats() models.CaptureStats
}

// Options configures Initialize. Zero values fall back to defaults.
type Options struct {
	SegmentDuration time.Duration
	MaxSegments     int
	OutputDir       string
	BaseURL         string
}

const (
	defaultSegmentDuration = 2 * time.Second
	defaultMaxSegments     = 10
)

// Store owns the segment files and the manifest for one live stream.
type Store struct {
	mu sync.Mutex

	source  FrameSource
	logger  logger.Logger
	baseURL string

	segmentDuration time.Duration
	maxSegments     int
	quality         float64
	outputDir       string

	initialized bool
	streaming   bool
	nextID      uint64
	window      []models.Segment
	evicted     []models.Segment
}

// NewStore wires a frame source into an uninitialized store.
func NewStore(source FrameSource, log logger.Logger) *Store {
	return &Store{
		source: source,
		logger: log,
	}
}

// Initialize prepares the output directory and resets streaming state.
// A missing OutputDir gets a unique directory under the system temp dir.
func (s *Store) Initialize(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.segmentDuration = opts.SegmentDuration
	if s.segmentDuration <= 0 {
		s.segmentDuration = defaultSegmentDuration
	}

	s.maxSegments = opts.MaxSegments
	if s.maxSegments <= 0 {
		s.maxSegments = defaultMaxSegments
	}

	s.outputDir = opts.OutputDir
	if s.outputDir == "" {
		s.outputDir = filepath.Join(os.TempDir(), "mirrord-"+uuid.NewString())
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir '%s': %w", s.outputDir, err)
	}

	s.baseURL = opts.BaseURL
	s.streaming = false
	s.initialized = true

	s.logger.Info().
		Str("output_dir", s.outputDir).
		Dur("segment_duration", s.segmentDuration).
		Int("max_segments", s.maxSegments).
		Msg("Segment store initialized")

	return nil
}

// Start begins accepting segment rotations.
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}

	s.streaming = true

	return nil
}

// Stop halts streaming. Segment files and the manifest are left intact;
// reclamation is CleanupOldSegments' job.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streaming = false
}

// IsStreaming reports whether the store is between Start and Stop.
func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.streaming
}

// OutputDir returns the directory holding segments and the manifest.
func (s *Store) OutputDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.outputDir
}

// CreateSegment pulls one frame from the source, writes it as the next
// segment file, and folds it into the manifest window.
func (s *Store) CreateSegment() (*models.Segment, error) {
	s.mu.Lock()

	if !s.initialized {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}

	source := s.source
	s.mu.Unlock()

	frame, err := source.CaptureFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	path := filepath.Join(s.outputDir, fmt.Sprintf("segment_%06d.ts", id))

	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write segment %d: %w", id, err)
	}

	seg := models.Segment{
		ID:        id,
		Path:      path,
		Duration:  s.segmentDuration.Seconds(),
		CreatedAt: time.Now(),
	}

	if err := s.appendLocked(seg); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Uint64("segment_id", id).
		Str("path", path).
		Msg("Segment created")

	return &seg, nil
}

// UpdatePlaylist appends an externally created segment reference to the
// manifest, applying the same sliding-window rules as CreateSegment.
func (s *Store) UpdatePlaylist(seg models.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}

	return s.appendLocked(seg)
}

// appendLocked adds seg to the window, evicts entries beyond
// maxSegments, and rewrites the manifest. Caller holds s.mu.
func (s *Store) appendLocked(seg models.Segment) error {
	s.window = append(s.window, seg)

	for len(s.window) > s.maxSegments {
		s.evicted = append(s.evicted, s.window[0])
		s.window = s.window[1:]
	}

	content := formatPlaylist(s.window, s.segmentDuration.Seconds())

	return writePlaylist(s.outputDir, content)
}

// CleanupOldSegments deletes the files of evicted segments plus any
// stray segment files sitting in the output dir outside the current
// window. Missing files count as already cleaned.
func (s *Store) CleanupOldSegments() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}

	for _, seg := range s.evicted {
		if err := removeIfPresent(seg.Path); err != nil {
			return err
		}
	}

	s.evicted = nil

	live := make(map[string]struct{}, len(s.window))
	for _, seg := range s.window {
		live[filepath.Base(seg.Path)] = struct{}{}
	}

	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return fmt.Errorf("failed to scan output dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".ts") {
			continue
		}

		if _, ok := live[name]; ok {
			continue
		}

		if err := removeIfPresent(filepath.Join(s.outputDir, name)); err != nil {
			return err
		}
	}

	return nil
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove segment '%s': %w", path, err)
	}

	return nil
}

// StreamURL returns the externally reachable manifest URL.
func (s *Store) StreamURL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}

	return strings.TrimSuffix(s.baseURL, "/") + "/stream/" + playlistName, nil
}

// Stats reports the upstream capture stats plus the manifest length.
func (s *Store) Stats() models.StreamStats {
	s.mu.Lock()
	source := s.source
	count := len(s.window)
	s.mu.Unlock()

	upstream := source.Stats()

	return models.StreamStats{
		FPS:            upstream.FPS,
		FrameCount:     upstream.FrameCount,
		ProcessingTime: upstream.ProcessingTime,
		SegmentCount:   count,
	}
}

// SegmentInterval is the rotation tick period.
func (s *Store) SegmentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.segmentDuration <= 0 {
		return defaultSegmentDuration
	}

	return s.segmentDuration
}

// UpdateSettings mutates encode quality and segment length for
// subsequently created segments. Existing segments are untouched.
func (s *Store) UpdateSettings(update models.StreamSettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Quality != nil && (*update.Quality < 0 || *update.Quality > 1) {
		return fmt.Errorf("%w: quality %f", ErrInvalidSettings, *update.Quality)
	}

	if update.SegmentDuration != nil && *update.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration %s", ErrInvalidSettings, *update.SegmentDuration)
	}

	if update.Quality != nil {
		s.quality = *update.Quality
	}

	if update.SegmentDuration != nil {
		s.segmentDuration = *update.SegmentDuration
	}

	return nil
}

// Quality returns the store's view of the encode quality.
func (s *Store) Quality() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.quality
}

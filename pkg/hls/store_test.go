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

package hls

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
)

var errSourceDown = errors.New("source down")

// fakeSource hands out numbered frames, or fails when told to.
type fakeSource struct {
	seq   uint64
	stats models.CaptureStats
	fail  bool
}

func (f *fakeSource) CaptureFrame() (*models.ProcessedFrame, error) {
	if f.fail {
		return nil, errSourceDown
	}

	f.seq++

	return &models.ProcessedFrame{
		Data:       []byte(fmt.Sprintf("frame-%d", f.seq)),
		CapturedAt: time.Now(),
		Sequence:   f.seq,
	}, nil
}

func (f *fakeSource) Stats() models.CaptureStats { return f.stats }

func newTestStore(t *testing.T, maxSegments int) (*Store, *fakeSource) {
	t.Helper()

	src := &fakeSource{}
	store := NewStore(src, logger.NewTestLogger())

	err := store.Initialize(Options{
		SegmentDuration: 2 * time.Second,
		MaxSegments:     maxSegments,
		OutputDir:       t.TempDir(),
		BaseURL:         "http://127.0.0.1:8000",
	})
	require.NoError(t, err)

	return store, src
}

func readManifest(t *testing.T, store *Store) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(store.OutputDir(), playlistName))
	require.NoError(t, err)

	return string(data)
}

func TestInitializeCreatesOutputDir(t *testing.T) {
	src := &fakeSource{}
	store := NewStore(src, logger.NewTestLogger())

	dir := filepath.Join(t.TempDir(), "segments")
	require.NoError(t, store.Initialize(Options{OutputDir: dir}))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.False(t, store.IsStreaming())
}

func TestInitializeDefaultOutputDir(t *testing.T) {
	store := NewStore(&fakeSource{}, logger.NewTestLogger())
	require.NoError(t, store.Initialize(Options{}))

	defer os.RemoveAll(store.OutputDir())

	assert.NotEmpty(t, store.OutputDir())
	assert.Equal(t, 2*time.Second, store.SegmentInterval())
}

func TestStartStop(t *testing.T) {
	store, _ := newTestStore(t, 10)

	require.NoError(t, store.Start())
	assert.True(t, store.IsStreaming())

	store.Stop()
	assert.False(t, store.IsStreaming())
}

func TestStartBeforeInitialize(t *testing.T) {
	store := NewStore(&fakeSource{}, logger.NewTestLogger())
	require.ErrorIs(t, store.Start(), ErrNotInitialized)
}

func TestCreateSegmentWritesFile(t *testing.T) {
	store, _ := newTestStore(t, 10)

	seg, err := store.CreateSegment()
	require.NoError(t, err)

	data, err := os.ReadFile(seg.Path)
	require.NoError(t, err)
	assert.Equal(t, "frame-1", string(data))

	assert.Contains(t, readManifest(t, store), filepath.Base(seg.Path))
}

func TestCreateSegmentMonotonicIDs(t *testing.T) {
	store, _ := newTestStore(t, 10)

	first, err := store.CreateSegment()
	require.NoError(t, err)

	second, err := store.CreateSegment()
	require.NoError(t, err)

	assert.Equal(t, first.ID+1, second.ID)
	assert.NotEqual(t, first.Path, second.Path)

	// earlier segment still on disk, untouched
	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "frame-1", string(data))
}

func TestCreateSegmentSourceFailure(t *testing.T) {
	store, src := newTestStore(t, 10)
	src.fail = true

	_, err := store.CreateSegment()
	require.ErrorIs(t, err, ErrCaptureUnavailable)
	require.ErrorIs(t, err, errSourceDown)
}

func TestSlidingWindowAndCleanup(t *testing.T) {
	const k = 3

	store, _ := newTestStore(t, k)

	var all []models.Segment

	for i := 0; i < k+4; i++ {
		seg, err := store.CreateSegment()
		require.NoError(t, err)
		all = append(all, *seg)
	}

	manifest := readManifest(t, store)

	// manifest holds exactly the k most recent segments
	for _, seg := range all[len(all)-k:] {
		assert.Contains(t, manifest, filepath.Base(seg.Path))
	}

	for _, seg := range all[:len(all)-k] {
		assert.NotContains(t, manifest, filepath.Base(seg.Path))
	}

	// media sequence is the oldest live id
	assert.Contains(t, manifest, fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d", all[len(all)-k].ID))

	require.NoError(t, store.CleanupOldSegments())

	for _, seg := range all[:len(all)-k] {
		_, err := os.Stat(seg.Path)
		assert.True(t, os.IsNotExist(err), "expected %s deleted", seg.Path)
	}

	for _, seg := range all[len(all)-k:] {
		_, err := os.Stat(seg.Path)
		assert.NoError(t, err, "expected %s retained", seg.Path)
	}
}

func TestCleanupRemovesStrayFiles(t *testing.T) {
	store, _ := newTestStore(t, 10)

	stray := filepath.Join(store.OutputDir(), "old_segment.ts")
	require.NoError(t, os.WriteFile(stray, []byte("stale"), 0o644))

	require.NoError(t, store.CleanupOldSegments())

	_, err := os.Stat(stray)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupToleratesMissingFiles(t *testing.T) {
	store, _ := newTestStore(t, 1)

	first, err := store.CreateSegment()
	require.NoError(t, err)

	_, err = store.CreateSegment()
	require.NoError(t, err)

	// evicted file already gone
	require.NoError(t, os.Remove(first.Path))
	require.NoError(t, store.CleanupOldSegments())
}

func TestUpdatePlaylistExternalSegment(t *testing.T) {
	store, _ := newTestStore(t, 10)

	path := filepath.Join(store.OutputDir(), "test_segment.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, store.UpdatePlaylist(models.Segment{
		ID:       7,
		Path:     path,
		Duration: 2,
	}))

	assert.Contains(t, readManifest(t, store), "test_segment.ts")
}

func TestStreamURL(t *testing.T) {
	store, _ := newTestStore(t, 10)

	url, err := store.StreamURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://"))
	assert.Contains(t, url, playlistName)
}

func TestStreamURLBeforeInitialize(t *testing.T) {
	store := NewStore(&fakeSource{}, logger.NewTestLogger())

	_, err := store.StreamURL()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestStats(t *testing.T) {
	store, src := newTestStore(t, 10)
	src.stats = models.CaptureStats{FPS: 30, FrameCount: 100, ProcessingTime: 0.016}

	_, err := store.CreateSegment()
	require.NoError(t, err)

	stats := store.Stats()
	assert.InEpsilon(t, 30.0, stats.FPS, 1e-9)
	assert.Equal(t, uint64(100), stats.FrameCount)
	assert.InEpsilon(t, 0.016, stats.ProcessingTime, 1e-9)
	assert.Equal(t, 1, stats.SegmentCount)
}

func TestUpdateSettings(t *testing.T) {
	store, _ := newTestStore(t, 10)

	q := 0.9
	d := 4 * time.Second

	require.NoError(t, store.UpdateSettings(models.StreamSettingsUpdate{
		Quality:         &q,
		SegmentDuration: &d,
	}))

	assert.InEpsilon(t, 0.9, store.Quality(), 1e-9)
	assert.Equal(t, 4*time.Second, store.SegmentInterval())

	badQ := 1.2
	require.ErrorIs(t,
		store.UpdateSettings(models.StreamSettingsUpdate{Quality: &badQ}),
		ErrInvalidSettings)

	badD := -time.Second
	require.ErrorIs(t,
		store.UpdateSettings(models.StreamSettingsUpdate{SegmentDuration: &badD}),
		ErrInvalidSettings)
}

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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/carverauto/mirrord/pkg/models"
)

const playlistName = "playlist.m3u8"

// formatPlaylist renders the manifest for the current sliding window.
// mediaSequence is the id of the oldest segment in the window.
func formatPlaylist(window []models.Segment, targetDuration float64) string {
	var b strings.Builder

	mediaSequence := uint64(0)
	if len(window) > 0 {
		mediaSequence = window[0].ID
	}

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(targetDuration)))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)

	for _, seg := range window {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		b.WriteString(filepath.Base(seg.Path))
		b.WriteByte('\n')
	}

	return b.String()
}

// writePlaylist rewrites the manifest atomically: readers either see the
// previous manifest or the new one, never a partial file.
func writePlaylist(dir, content string) error {
	tmp, err := os.CreateTemp(dir, playlistName+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("failed to write temp manifest: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("failed to close temp manifest: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, playlistName)); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("failed to publish manifest: %w", err)
	}

	return nil
}

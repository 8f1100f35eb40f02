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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
	"github.com/carverauto/mirrord/pkg/presence"
)

type fakeTracker struct {
	connected  bool
	deviceID   string
	deviceName string
	heartbeats int
	failWith   error
}

func (f *fakeTracker) InitializeConnection(_ context.Context, deviceID, deviceName string) error {
	if f.failWith != nil {
		return f.failWith
	}

	f.deviceID = deviceID
	f.deviceName = deviceName

	return nil
}

func (f *fakeTracker) HandleClientConnection(context.Context) error {
	if f.failWith != nil {
		return f.failWith
	}

	f.connected = true

	return nil
}

func (f *fakeTracker) HandleClientDisconnection(context.Context) error {
	if f.failWith != nil {
		return f.failWith
	}

	f.connected = false

	return nil
}

func (f *fakeTracker) UpdateHeartbeat(context.Context) error {
	if f.failWith != nil {
		return f.failWith
	}

	f.heartbeats++

	return nil
}

func (f *fakeTracker) IsConnected() bool { return f.connected }

func (f *fakeTracker) ConnectionStatus() models.ConnectionStatus {
	var hb *time.Time

	if f.connected {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		hb = &now
	}

	return models.ConnectionStatus{
		DeviceID:      f.deviceID,
		DeviceName:    f.deviceName,
		IsConnected:   f.connected,
		LastHeartbeat: hb,
	}
}

type fakeStore struct {
	url    string
	urlErr error
	stats  models.StreamStats
	dir    string
}

func (f *fakeStore) StreamURL() (string, error) { return f.url, f.urlErr }
func (f *fakeStore) Stats() models.StreamStats  { return f.stats }
func (f *fakeStore) OutputDir() string          { return f.dir }

type fakeOptimizer struct {
	stats models.OptimizationStats
}

func (f *fakeOptimizer) OptimizationStats() models.OptimizationStats { return f.stats }

func newTestServer(t *testing.T, tracker *fakeTracker, store *fakeStore) (*APIServer, *presence.MemoryDirectory) {
	t.Helper()

	if store.dir == "" {
		store.dir = t.TempDir()
	}

	directory := presence.NewMemoryDirectory()

	srv := NewAPIServer(
		WithTracker(tracker),
		WithStore(store),
		WithOptimizer(&fakeOptimizer{stats: models.OptimizationStats{CurrentFPS: 29, OptimizationCount: 3}}),
		WithDirectory(directory),
		WithLogger(logger.NewTestLogger()),
	)

	return srv, directory
}

func doRequest(srv *APIServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{})

	rec := doRequest(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestInitializeConnection(t *testing.T) {
	tracker := &fakeTracker{}
	srv, _ := newTestServer(t, tracker, &fakeStore{})

	rec := doRequest(srv, http.MethodPost, "/connection/initialize",
		`{"deviceId":"dev-1","deviceName":"Desk"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeBody(t, rec)["status"])
	assert.Equal(t, "dev-1", tracker.deviceID)
	assert.Equal(t, "Desk", tracker.deviceName)
}

func TestInitializeConnectionMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{})

	rec := doRequest(srv, http.MethodPost, "/connection/initialize", `{not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "error")
}

func TestInitializeConnectionMissingFields(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{})

	rec := doRequest(srv, http.MethodPost, "/connection/initialize", `{"deviceId":"dev-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInitializeConnectionTrackerFailure(t *testing.T) {
	tracker := &fakeTracker{failWith: errors.New("directory unavailable")}
	srv, _ := newTestServer(t, tracker, &fakeStore{})

	rec := doRequest(srv, http.MethodPost, "/connection/initialize",
		`{"deviceId":"dev-1","deviceName":"Desk"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "directory unavailable", decodeBody(t, rec)["error"])
}

func TestConnectDisconnectHeartbeat(t *testing.T) {
	tracker := &fakeTracker{}
	srv, _ := newTestServer(t, tracker, &fakeStore{})

	rec := doRequest(srv, http.MethodPost, "/connection/connect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, tracker.connected)

	rec = doRequest(srv, http.MethodPost, "/connection/heartbeat", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, tracker.heartbeats)

	rec = doRequest(srv, http.MethodPost, "/connection/disconnect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, tracker.connected)
}

func TestConnectionStatusSnapshot(t *testing.T) {
	tracker := &fakeTracker{connected: true, deviceID: "dev-1", deviceName: "Desk"}
	srv, _ := newTestServer(t, tracker, &fakeStore{})

	rec := doRequest(srv, http.MethodGet, "/connection/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "dev-1", body["deviceId"])
	assert.Equal(t, "Desk", body["deviceName"])
	assert.Equal(t, true, body["isConnected"])
	assert.NotNil(t, body["lastHeartbeat"])
}

func TestStreamURLRequiresConnection(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{url: "http://localhost:8080/stream/playlist.m3u8"})

	rec := doRequest(srv, http.MethodGet, "/stream/url", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Not connected", decodeBody(t, rec)["error"])
}

func TestStreamURLWhenConnected(t *testing.T) {
	srv, _ := newTestServer(t,
		&fakeTracker{connected: true},
		&fakeStore{url: "http://localhost:8080/stream/playlist.m3u8"})

	rec := doRequest(srv, http.MethodGet, "/stream/url", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:8080/stream/playlist.m3u8", decodeBody(t, rec)["url"])
}

func TestStreamURLStoreFailure(t *testing.T) {
	srv, _ := newTestServer(t,
		&fakeTracker{connected: true},
		&fakeStore{urlErr: errors.New("streaming not initialized")})

	rec := doRequest(srv, http.MethodGet, "/stream/url", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStreamStats(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{
		stats: models.StreamStats{FPS: 27.5, FrameCount: 120, SegmentCount: 4},
	})

	rec := doRequest(srv, http.MethodGet, "/stream/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.InEpsilon(t, 27.5, body["fps"], 1e-9)
	assert.InEpsilon(t, float64(120), body["frame_count"], 1e-9)
	assert.InEpsilon(t, float64(4), body["segment_count"], 1e-9)
}

func TestOptimizationStats(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{})

	rec := doRequest(srv, http.MethodGet, "/optimization/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.InEpsilon(t, 29.0, body["current_fps"], 1e-9)
	assert.InEpsilon(t, float64(3), body["optimization_count"], 1e-9)
}

func TestOnlineDevices(t *testing.T) {
	srv, directory := newTestServer(t, &fakeTracker{}, &fakeStore{})

	rec := doRequest(srv, http.MethodGet, "/devices/online", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	require.NoError(t, directory.Upsert(context.Background(), models.DeviceRecord{
		DeviceID: "dev-1",
		Name:     "Desk",
		IsOnline: true,
		LastSeen: time.Now(),
	}))

	rec = doRequest(srv, http.MethodGet, "/devices/online", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var devices []models.DeviceRecord

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].DeviceID)
}

func TestServeSegmentFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte("#EXTM3U\n"), 0o600))

	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{dir: dir})

	rec := doRequest(srv, http.MethodGet, "/stream/playlist.m3u8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#EXTM3U")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeTracker{}, &fakeStore{})

	rec := doRequest(srv, http.MethodOptions, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

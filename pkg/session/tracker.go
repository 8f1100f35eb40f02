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

// Package session tracks the single active producer session and its
// heartbeat-based liveness.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
	"github.com/carverauto/mirrord/pkg/presence"
)

// DefaultTimeout is the heartbeat age beyond which the session is
// considered dead.
const DefaultTimeout = 30 * time.Second

// Tracker is the producer-session state machine. All state transitions
// and the timeout sweep share t.mu, so a heartbeat racing a timeout
// check resolves deterministically: whichever takes the lock second sees
// the other's write.
//
// Presence notifications follow the local state change and are not
// rolled back when the directory call fails (local-state-then-notify).
type Tracker struct {
	mu sync.Mutex

	directory presence.Directory
	clock     Clock
	logger    logger.Logger

	deviceID      string
	deviceName    string
	initialized   bool
	connected     bool
	lastHeartbeat time.Time
}

// NewTracker builds a tracker notifying the given presence directory.
// A nil clock falls back to real time.
func NewTracker(directory presence.Directory, clock Clock, log logger.Logger) *Tracker {
	if clock == nil {
		clock = realClock{}
	}

	return &Tracker{
		directory: directory,
		clock:     clock,
		logger:    log,
	}
}

// InitializeConnection records the producer's identity, marks it
// connected, and creates its presence record. A second call with a
// different device id fails; re-initializing the same device is allowed.
func (t *Tracker) InitializeConnection(ctx context.Context, deviceID, deviceName string) error {
	t.mu.Lock()

	if t.initialized && t.deviceID != deviceID {
		t.mu.Unlock()
		return ErrAlreadyInitialized
	}

	now := t.clock.Now()

	t.deviceID = deviceID
	t.deviceName = deviceName
	t.initialized = true
	t.connected = true
	t.lastHeartbeat = now
	t.mu.Unlock()

	t.logger.Info().
		Str("device_id", deviceID).
		Str("device_name", deviceName).
		Msg("Session initialized")

	return t.directory.Upsert(ctx, models.DeviceRecord{
		DeviceID: deviceID,
		Name:     deviceName,
		IsOnline: true,
		LastSeen: now,
	})
}

// HandleClientConnection marks the session connected and stamps a fresh
// heartbeat.
func (t *Tracker) HandleClientConnection(ctx context.Context) error {
	t.mu.Lock()

	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	now := t.clock.Now()
	t.connected = true
	t.lastHeartbeat = now
	record := t.recordLocked(true, now)
	t.mu.Unlock()

	t.logger.Info().Str("device_id", record.DeviceID).Msg("Client connected")

	return t.directory.Upsert(ctx, record)
}

// HandleClientDisconnection marks the session disconnected and clears
// the heartbeat. Idempotent.
func (t *Tracker) HandleClientDisconnection(ctx context.Context) error {
	t.mu.Lock()

	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	now := t.clock.Now()
	t.connected = false
	t.lastHeartbeat = time.Time{}
	record := t.recordLocked(false, now)
	t.mu.Unlock()

	t.logger.Info().Str("device_id", record.DeviceID).Msg("Client disconnected")

	return t.directory.Upsert(ctx, record)
}

// UpdateHeartbeat stamps a fresh heartbeat. A heartbeat arriving while
// disconnected re-establishes the connection.
func (t *Tracker) UpdateHeartbeat(ctx context.Context) error {
	t.mu.Lock()

	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	now := t.clock.Now()
	t.connected = true
	t.lastHeartbeat = now
	record := t.recordLocked(true, now)
	t.mu.Unlock()

	return t.directory.Upsert(ctx, record)
}

// CheckConnectionTimeout disconnects the session when the last heartbeat
// is older than timeout. Returns true only on the call that performs the
// transition; repeated calls on a dead session return false.
func (t *Tracker) CheckConnectionTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t.mu.Lock()

	if !t.initialized || !t.connected || t.lastHeartbeat.IsZero() {
		t.mu.Unlock()
		return false, nil
	}

	now := t.clock.Now()
	if now.Sub(t.lastHeartbeat) <= timeout {
		t.mu.Unlock()
		return false, nil
	}

	t.connected = false
	t.lastHeartbeat = time.Time{}
	record := t.recordLocked(false, now)
	t.mu.Unlock()

	t.logger.Warn().
		Str("device_id", record.DeviceID).
		Dur("timeout", timeout).
		Msg("Session timed out")

	return true, t.directory.Upsert(ctx, record)
}

// IsConnected reports the session's connectivity.
func (t *Tracker) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connected
}

// ConnectionStatus returns a side-effect-free snapshot.
func (t *Tracker) ConnectionStatus() models.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := models.ConnectionStatus{
		DeviceID:    t.deviceID,
		DeviceName:  t.deviceName,
		IsConnected: t.connected,
	}

	if !t.lastHeartbeat.IsZero() {
		hb := t.lastHeartbeat
		status.LastHeartbeat = &hb
	}

	return status
}

// recordLocked builds the presence record for the current device.
// Caller holds t.mu.
func (t *Tracker) recordLocked(online bool, seen time.Time) models.DeviceRecord {
	return models.DeviceRecord{
		DeviceID: t.deviceID,
		Name:     t.deviceName,
		IsOnline: online,
		LastSeen: seen,
	}
}

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

// Package presence is the external device-presence directory: one record
// per device, keyed by device id, tracking whether it is online.
package presence

import (
	"context"

	"github.com/carverauto/mirrord/pkg/models"
)

// Directory is the presence capability. The real backend is NATS
// JetStream KV; tests use MemoryDirectory.
type Directory interface {
	// Upsert creates or overwrites the record for record.DeviceID.
	Upsert(ctx context.Context, record models.DeviceRecord) error
	// QueryOnline lists the records currently marked online.
	QueryOnline(ctx context.Context) ([]models.DeviceRecord, error)
	// Close releases the backend connection.
	Close() error
}

// recordKey is the directory key for a device id.
func recordKey(deviceID string) string {
	return "device_" + deviceID
}

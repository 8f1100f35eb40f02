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

package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mirrord/pkg/models"
)

func TestUpsertAndRecord(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, d.Upsert(ctx, models.DeviceRecord{
		DeviceID: "dev-1",
		Name:     "Device 1",
		IsOnline: true,
		LastSeen: now,
	}))

	record, ok := d.Record("dev-1")
	require.True(t, ok)
	assert.Equal(t, "Device 1", record.Name)
	assert.True(t, record.IsOnline)
	assert.Equal(t, now, record.LastSeen)
}

func TestUpsertOverwrites(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, d.Upsert(ctx, models.DeviceRecord{DeviceID: "dev-1", IsOnline: true}))
	require.NoError(t, d.Upsert(ctx, models.DeviceRecord{DeviceID: "dev-1", IsOnline: false}))

	record, ok := d.Record("dev-1")
	require.True(t, ok)
	assert.False(t, record.IsOnline)
}

func TestQueryOnlineFiltersOffline(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, d.Upsert(ctx, models.DeviceRecord{DeviceID: "1", Name: "Device 1", IsOnline: true}))
	require.NoError(t, d.Upsert(ctx, models.DeviceRecord{DeviceID: "2", Name: "Device 2", IsOnline: false}))

	online, err := d.QueryOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "1", online[0].DeviceID)
	assert.Equal(t, "Device 1", online[0].Name)
}

func TestFailWith(t *testing.T) {
	d := NewMemoryDirectory()
	d.FailWith = errors.New("directory down")

	err := d.Upsert(context.Background(), models.DeviceRecord{DeviceID: "1"})
	require.Error(t, err)

	_, err = d.QueryOnline(context.Background())
	require.Error(t, err)
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "device_abc", recordKey("abc"))
}

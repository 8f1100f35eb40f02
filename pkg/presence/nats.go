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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/mirrord/pkg/models"
)

// NatsDirectory stores presence records in a NATS JetStream KeyValue
// bucket, one JSON record per device.
type NatsDirectory struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNatsDirectory connects to NATS and creates (or binds to) the
// presence bucket.
func NewNatsDirectory(ctx context.Context, natsURL, bucket string) (*NatsDirectory, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}

	return &NatsDirectory{nc: nc, kv: kv}, nil
}

func (d *NatsDirectory) Upsert(ctx context.Context, record models.DeviceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", record.DeviceID, err)
	}

	if _, err := d.kv.Put(ctx, recordKey(record.DeviceID), data); err != nil {
		return fmt.Errorf("failed to put record for %s: %w", record.DeviceID, err)
	}

	return nil
}

func (d *NatsDirectory) QueryOnline(ctx context.Context) ([]models.DeviceRecord, error) {
	keys, err := d.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var online []models.DeviceRecord

	for _, key := range keys {
		entry, err := d.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get record %s: %w", key, err)
		}

		var record models.DeviceRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", key, err)
		}

		if record.IsOnline {
			online = append(online, record)
		}
	}

	return online, nil
}

func (d *NatsDirectory) Close() error {
	d.nc.Close()

	return nil
}

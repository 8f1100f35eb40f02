package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/carverauto/mirrord/pkg/models"
)

// MemoryDirectory is an in-process Directory for tests and single-host
// deployments without NATS.
type MemoryDirectory struct {
	mu      sync.Mutex
	records map[string]models.DeviceRecord

	// FailWith, when set, makes every call return this error.
	FailWith error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{records: make(map[string]models.DeviceRecord)}
}

func (d *MemoryDirectory) Upsert(_ context.Context, record models.DeviceRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailWith != nil {
		return d.FailWith
	}

	d.records[recordKey(record.DeviceID)] = record

	return nil
}

func (d *MemoryDirectory) QueryOnline(_ context.Context) ([]models.DeviceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailWith != nil {
		return nil, d.FailWith
	}

	var online []models.DeviceRecord

	for _, record := range d.records {
		if record.IsOnline {
			online = append(online, record)
		}
	}

	sort.Slice(online, func(i, j int) bool {
		return online[i].DeviceID < online[j].DeviceID
	})

	return online, nil
}

func (d *MemoryDirectory) Close() error {
	return nil
}

// Record returns the stored record for a device id, if any.
func (d *MemoryDirectory) Record(deviceID string) (models.DeviceRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.records[recordKey(deviceID)]

	return record, ok
}

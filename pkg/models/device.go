package models

import (
	"time"
)

// DeviceRecord is one entry in the presence directory.
type DeviceRecord struct {
	DeviceID string    `json:"deviceId"`
	Name     string    `json:"name"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// ConnectionStatus is the session tracker's externally visible state.
// LastHeartbeat is nil while disconnected.
type ConnectionStatus struct {
	DeviceID      string     `json:"deviceId"`
	DeviceName    string     `json:"deviceName"`
	IsConnected   bool       `json:"isConnected"`
	LastHeartbeat *time.Time `json:"lastHeartbeat"`
}

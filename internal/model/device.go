package model

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionStatus describes the state of a device relative to the
// previous poll of the bus.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusReconnected  ConnectionStatus = "reconnected"
	StatusBlocked      ConnectionStatus = "blocked"
)

// DeviceKey identifies a device across polls. The key is stable only
// while the device stays on the same physical port: a re-plug into a
// different port yields a new bus/address pair and therefore a new key.
type DeviceKey struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Bus       uint8  `json:"bus"`
	Address   uint8  `json:"address"`
}

func (k DeviceKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", k.VendorID, k.ProductID, k.Bus, k.Address)
}

// MarshalText lets DeviceKey serve as a JSON map key.
func (k DeviceKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the "vid:pid:bus:addr" form produced by String.
func (k *DeviceKey) UnmarshalText(text []byte) error {
	var vid, pid uint16
	var bus, addr uint8
	if _, err := fmt.Sscanf(string(text), "%d:%d:%d:%d", &vid, &pid, &bus, &addr); err != nil {
		return fmt.Errorf("invalid device key %q: %w", text, err)
	}
	*k = DeviceKey{VendorID: vid, ProductID: pid, Bus: bus, Address: addr}
	return nil
}

// DeviceSnapshot is an immutable record of one device at one poll
// instant. The manufacturer, product and serial strings are best-effort
// reads and nil when the descriptor could not be read.
type DeviceSnapshot struct {
	BusNumber      uint8            `json:"bus_number"`
	DeviceAddress  uint8            `json:"device_address"`
	VendorID       uint16           `json:"vendor_id"`
	ProductID      uint16           `json:"product_id"`
	DeviceVersion  uint16           `json:"device_version"`
	Manufacturer   *string          `json:"manufacturer,omitempty"`
	Product        *string          `json:"product,omitempty"`
	SerialNumber   *string          `json:"serial_number,omitempty"`
	DeviceClass    uint8            `json:"device_class"`
	DeviceSubclass uint8            `json:"device_subclass"`
	DeviceProtocol uint8            `json:"device_protocol"`
	MaxPacketSize  uint8            `json:"max_packet_size"`
	NumConfigs     uint8            `json:"num_configurations"`
	Timestamp      time.Time        `json:"timestamp"`
	Status         ConnectionStatus `json:"connection_status"`
}

// Key returns the identity key for this snapshot.
func (d DeviceSnapshot) Key() DeviceKey {
	return DeviceKey{
		VendorID:  d.VendorID,
		ProductID: d.ProductID,
		Bus:       d.BusNumber,
		Address:   d.DeviceAddress,
	}
}

// DisplayName returns the best human-readable name for the device.
func (d DeviceSnapshot) DisplayName() string {
	if d.Product != nil && *d.Product != "" {
		return *d.Product
	}
	if d.Manufacturer != nil && *d.Manufacturer != "" {
		return *d.Manufacturer
	}
	return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
}

// FilterByName keeps the devices whose product or manufacturer string
// contains pattern, case-insensitively. While a pattern is set a device
// exposing neither string is excluded; an empty pattern keeps all.
func FilterByName(devices []DeviceSnapshot, pattern string) []DeviceSnapshot {
	if pattern == "" {
		return devices
	}
	lower := strings.ToLower(pattern)
	out := make([]DeviceSnapshot, 0, len(devices))
	for _, dev := range devices {
		if containsFold(dev.Product, lower) || containsFold(dev.Manufacturer, lower) {
			out = append(out, dev)
		}
	}
	return out
}

func containsFold(value *string, lowerPattern string) bool {
	if value == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*value), lowerPattern)
}

// ChangeType classifies one entry in a diff batch.
type ChangeType string

const (
	ChangeConnected    ChangeType = "CONNECTED"
	ChangeDisconnected ChangeType = "DISCONNECTED"
	ChangeReconnected  ChangeType = "RECONNECTED"
	ChangeBlocked      ChangeType = "BLOCKED"
)

// DeviceChange is produced by the diff step and never mutated after
// creation.
type DeviceChange struct {
	Type   ChangeType     `json:"type"`
	Device DeviceSnapshot `json:"device"`
}

// DeviceStatistics holds per-key counters. Entries are created on first
// sighting of a key and live for the rest of the process.
type DeviceStatistics struct {
	TotalConnections    uint32        `json:"total_connections"`
	TotalDisconnections uint32        `json:"total_disconnections"`
	TotalBlocked        uint32        `json:"total_blocked"`
	FirstSeen           time.Time     `json:"first_seen"`
	LastSeen            time.Time     `json:"last_seen"`
	ConnectionDuration  time.Duration `json:"connection_duration"`
	ConnectionCount     uint32        `json:"connection_count"`
}

// ConnectionRecord is one entry in the bounded connection history.
type ConnectionRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Key       DeviceKey        `json:"key"`
	Status    ConnectionStatus `json:"status"`
}

// FrequencyBucket is one hourly bucket of the trailing-24h connection
// frequency histogram.
type FrequencyBucket struct {
	HourStart   time.Time `json:"hour_start"`
	Connections uint32    `json:"connections"`
}

// DeviceAnalytics is a point-in-time aggregation over the statistics
// map and the connection history buffer.
type DeviceAnalytics struct {
	ClassDistribution   map[uint8]uint32  `json:"device_class_distribution"`
	VendorDistribution  map[uint16]uint32 `json:"vendor_distribution"`
	ConnectionFrequency []FrequencyBucket `json:"connection_frequency"`
	TotalDevicesSeen    uint32            `json:"total_devices_seen"`
	UniqueDevices       uint32            `json:"unique_devices"`
	BlockedDevices      uint32            `json:"blocked_devices"`
	SecurityViolations  uint32            `json:"security_violations"`
}

package hub

import (
	"time"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

// CommandType names a command sent from a consumer to the monitoring
// service.
type CommandType string

const (
	CmdStartMonitoring    CommandType = "start_monitoring"
	CmdStopMonitoring     CommandType = "stop_monitoring"
	CmdRefreshDevices     CommandType = "refresh_devices"
	CmdSetFilter          CommandType = "set_filter"
	CmdSetPollingInterval CommandType = "set_polling_interval"
	CmdReloadPolicy       CommandType = "reload_policy"
	CmdShutdown           CommandType = "shutdown"
)

// Command is one instruction for the monitoring service. Filter and
// Interval are meaningful only for their respective command types.
type Command struct {
	Type     CommandType
	Filter   string
	Interval time.Duration
}

// EventType names an event emitted by the monitoring service.
type EventType string

const (
	// EvtDevicesLoaded carries the initial device list.
	EvtDevicesLoaded EventType = "devices_loaded"
	// EvtDevicesUpdated carries a refreshed device list.
	EvtDevicesUpdated EventType = "devices_updated"
	// EvtDevicesChanged carries a batch of detected changes.
	EvtDevicesChanged EventType = "devices_changed"
	// EvtMonitoringStarted signals that polling is active.
	EvtMonitoringStarted EventType = "monitoring_started"
	// EvtMonitoringStopped signals that polling is paused.
	EvtMonitoringStopped EventType = "monitoring_stopped"
	// EvtMonitoringError carries a generic monitoring failure.
	EvtMonitoringError EventType = "monitoring_error"
	// EvtPermissionError carries an actionable permission failure.
	EvtPermissionError EventType = "permission_error"
	// EvtUsbUnavailable signals that the USB subsystem is missing.
	EvtUsbUnavailable EventType = "usb_unavailable"
)

// Event is one message from the monitoring service to consumers.
// Devices is set for the list events, Changes for change batches and
// Message for the error events.
type Event struct {
	Type    EventType
	Devices []model.DeviceSnapshot
	Changes []model.DeviceChange
	Message string
}

// Telemetry is the copy-out view of the tracker state that the service
// publishes after each cycle so consumers can read statistics without
// touching service-owned state.
type Telemetry struct {
	Statistics     map[model.DeviceKey]model.DeviceStatistics `json:"statistics"`
	History        []model.ConnectionRecord                   `json:"history"`
	SecurityEvents []model.SecurityEvent                      `json:"security_events"`
	Analytics      model.DeviceAnalytics                      `json:"analytics"`
}

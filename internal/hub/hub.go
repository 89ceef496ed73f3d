// Package hub decouples the monitoring service from its consumers with
// a command/event channel pair plus cached status and device-list cells
// that any number of reader goroutines may poll without contending with
// the service.
package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
)

const (
	commandQueueSize = 64
	eventQueueSize   = 256
	statusQueueSize  = 16
)

// ErrServiceStopped is returned by SendCommand once the service side
// has terminated.
var ErrServiceStopped = errors.New("hub: monitoring service has stopped")

// ErrQueueFull is returned when the command queue cannot accept another
// command without blocking.
var ErrQueueFull = errors.New("hub: command queue full")

// state is shared between the consumer-facing Hub and the
// service-facing Endpoint. The mutex only ever guards copy-in/copy-out
// of the cached values, never a channel send.
type state struct {
	mu        sync.RWMutex
	status    model.MonitoringStatus
	devices   []model.DeviceSnapshot
	telemetry Telemetry
	closed    bool

	subMu sync.Mutex
	subs  []chan model.MonitoringStatus
}

// Hub is the consumer side: commands in, events and cached reads out.
type Hub struct {
	st       *state
	commands chan<- Command
	events   <-chan Event
}

// Endpoint is the service side, used only by the monitoring service
// goroutine.
type Endpoint struct {
	st       *state
	commands <-chan Command
	events   chan<- Event
}

// New creates a connected Hub/Endpoint pair.
func New() (*Hub, *Endpoint) {
	st := &state{status: model.MonitoringStatus{State: model.StateStopped}}
	commands := make(chan Command, commandQueueSize)
	events := make(chan Event, eventQueueSize)
	return &Hub{st: st, commands: commands, events: events},
		&Endpoint{st: st, commands: commands, events: events}
}

// SendCommand queues a command for the service without blocking.
func (h *Hub) SendCommand(cmd Command) error {
	h.st.mu.RLock()
	closed := h.st.closed
	h.st.mu.RUnlock()
	if closed {
		return ErrServiceStopped
	}
	select {
	case h.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// StartMonitoring asks the service to begin polling.
func (h *Hub) StartMonitoring() error {
	return h.SendCommand(Command{Type: CmdStartMonitoring})
}

// StopMonitoring asks the service to pause polling.
func (h *Hub) StopMonitoring() error {
	return h.SendCommand(Command{Type: CmdStopMonitoring})
}

// RefreshDevices asks for one immediate snapshot cycle.
func (h *Hub) RefreshDevices() error {
	return h.SendCommand(Command{Type: CmdRefreshDevices})
}

// SetFilter updates the device name filter; an empty pattern clears it.
func (h *Hub) SetFilter(pattern string) error {
	return h.SendCommand(Command{Type: CmdSetFilter, Filter: pattern})
}

// SetPollingInterval adjusts the poll timer period.
func (h *Hub) SetPollingInterval(interval time.Duration) error {
	return h.SendCommand(Command{Type: CmdSetPollingInterval, Interval: interval})
}

// ReloadPolicy asks the service to re-read the security rules from the
// configuration provider. New rules apply to subsequent connections
// only.
func (h *Hub) ReloadPolicy() error {
	return h.SendCommand(Command{Type: CmdReloadPolicy})
}

// Shutdown asks the service to exit its loop.
func (h *Hub) Shutdown() error {
	return h.SendCommand(Command{Type: CmdShutdown})
}

// TryRecvEvent returns the next pending event without blocking.
func (h *Hub) TryRecvEvent() (Event, bool) {
	select {
	case ev, ok := <-h.events:
		if !ok {
			return Event{}, false
		}
		return ev, true
	default:
		return Event{}, false
	}
}

// Status returns the last known monitoring status.
func (h *Hub) Status() model.MonitoringStatus {
	h.st.mu.RLock()
	defer h.st.mu.RUnlock()
	return h.st.status
}

// Devices returns a copy of the last known device list.
func (h *Hub) Devices() []model.DeviceSnapshot {
	h.st.mu.RLock()
	defer h.st.mu.RUnlock()
	out := make([]model.DeviceSnapshot, len(h.st.devices))
	copy(out, h.st.devices)
	return out
}

// Telemetry returns the last published statistics snapshot.
func (h *Hub) Telemetry() Telemetry {
	h.st.mu.RLock()
	defer h.st.mu.RUnlock()
	return h.st.telemetry
}

// SubscribeStatus returns a channel receiving every status change. The
// channel is buffered; updates to a subscriber that has fallen behind
// are dropped rather than blocking the service.
func (h *Hub) SubscribeStatus() <-chan model.MonitoringStatus {
	ch := make(chan model.MonitoringStatus, statusQueueSize)
	h.st.subMu.Lock()
	h.st.subs = append(h.st.subs, ch)
	h.st.subMu.Unlock()
	return ch
}

// Commands exposes the inbound command stream to the service loop.
func (ep *Endpoint) Commands() <-chan Command {
	return ep.commands
}

// Publish delivers an event to the consumer. Status-bearing and
// device-list events update the cached cells before the event becomes
// visible, so a cached read never lags behind a received event.
func (ep *Endpoint) Publish(ev Event) {
	switch ev.Type {
	case EvtDevicesLoaded, EvtDevicesUpdated:
		ep.st.mu.Lock()
		ep.st.devices = append([]model.DeviceSnapshot(nil), ev.Devices...)
		ep.st.mu.Unlock()
	case EvtMonitoringStarted:
		ep.setStatus(model.MonitoringStatus{State: model.StateRunning})
	case EvtMonitoringStopped:
		ep.setStatus(model.MonitoringStatus{State: model.StateStopped})
	case EvtMonitoringError:
		ep.setStatus(model.ErrorStatus(ev.Message))
	case EvtPermissionError:
		ep.setStatus(model.ErrorStatus("Permission: " + ev.Message))
	case EvtUsbUnavailable:
		ep.setStatus(model.ErrorStatus("USB unavailable: " + ev.Message))
	}

	select {
	case ep.events <- ev:
	default:
		log.Warn("Event queue full, dropping event", "type", ev.Type)
	}
}

// SetStatus updates the cached status directly, for transitions that
// have no corresponding event (Starting, Stopping).
func (ep *Endpoint) SetStatus(status model.MonitoringStatus) {
	ep.setStatus(status)
}

// PublishTelemetry replaces the cached statistics snapshot.
func (ep *Endpoint) PublishTelemetry(t Telemetry) {
	ep.st.mu.Lock()
	ep.st.telemetry = t
	ep.st.mu.Unlock()
}

// Close marks the service as terminated. Subsequent SendCommand calls
// fail and all status subscribers are closed.
func (ep *Endpoint) Close() {
	ep.st.mu.Lock()
	ep.st.closed = true
	ep.st.mu.Unlock()

	ep.st.subMu.Lock()
	for _, ch := range ep.st.subs {
		close(ch)
	}
	ep.st.subs = nil
	ep.st.subMu.Unlock()
}

func (ep *Endpoint) setStatus(status model.MonitoringStatus) {
	ep.st.mu.Lock()
	ep.st.status = status
	ep.st.mu.Unlock()

	ep.st.subMu.Lock()
	subs := append([]chan model.MonitoringStatus(nil), ep.st.subs...)
	ep.st.subMu.Unlock()

	// The lock is released before the fan-out; sends are non-blocking.
	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}
}

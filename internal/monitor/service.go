// Package monitor runs the background polling loop that detects USB
// device changes, enforces the security policy and feeds the
// communication hub.
package monitor

import (
	"context"
	"time"

	"github.com/KnivInstitute/IronWatch/internal/diff"
	"github.com/KnivInstitute/IronWatch/internal/hub"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
	"github.com/KnivInstitute/IronWatch/internal/policy"
	"github.com/KnivInstitute/IronWatch/internal/stats"
	"github.com/KnivInstitute/IronWatch/internal/usb"
)

// DefaultPollInterval is the poll cadence used when the configuration
// does not specify one.
const DefaultPollInterval = 500 * time.Millisecond

// AuditSink persists security events. Persistence is best-effort; a
// failing sink never interrupts monitoring.
type AuditSink interface {
	AppendSecurityEvents(events []model.SecurityEvent) error
}

// Options configures a Service.
type Options struct {
	// PollInterval is the poll cadence; zero selects DefaultPollInterval.
	PollInterval time.Duration
	// Filter is the initial case-insensitive name filter, empty for none.
	Filter string
	// ReaderFactory creates the bus reader on demand; nil selects the
	// platform reader. Initialization is lazy and retried on every
	// StartMonitoring command, so a permission problem fixed at runtime
	// heals without a restart.
	ReaderFactory func() (usb.Reader, error)
	// Audit, when non-nil, receives every security event for
	// persistence.
	Audit AuditSink
	// PolicyProvider, when non-nil, supplies fresh rules for the
	// ReloadPolicy command.
	PolicyProvider func() (model.PolicySet, error)
}

// Service is the monitoring state machine. Its Run loop is the sole
// owner of the previous-snapshot map, the statistics tracker and the
// bus reader; consumers interact exclusively through the hub.
type Service struct {
	endpoint   *hub.Endpoint
	newReader  func() (usb.Reader, error)
	reader     usb.Reader
	engine     *diff.Engine
	tracker    *stats.Tracker
	audit      AuditSink
	loadPolicy func() (model.PolicySet, error)

	previous   map[model.DeviceKey]model.DeviceSnapshot
	interval   time.Duration
	filter     string
	monitoring bool

	// Security events produced since the last audit flush.
	pendingAudit []model.SecurityEvent
}

// NewService creates a monitoring service publishing to the given
// endpoint and enforcing the given policy.
func NewService(endpoint *hub.Endpoint, policySet model.PolicySet, opts Options) *Service {
	s := &Service{
		endpoint:   endpoint,
		newReader:  opts.ReaderFactory,
		tracker:    stats.NewTracker(),
		audit:      opts.Audit,
		loadPolicy: opts.PolicyProvider,
		previous:   make(map[model.DeviceKey]model.DeviceSnapshot),
		interval:   opts.PollInterval,
		filter:     opts.Filter,
	}
	if s.newReader == nil {
		s.newReader = usb.New
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	s.engine = diff.NewEngine(policy.NewEvaluator(policySet, s))
	return s
}

// RecordSecurityEvent forwards a policy decision to the tracker and
// queues it for the audit sink. Implements policy.EventSink; only the
// service goroutine calls it.
func (s *Service) RecordSecurityEvent(event model.SecurityEvent) {
	s.tracker.RecordSecurityEvent(event)
	if s.audit != nil {
		s.pendingAudit = append(s.pendingAudit, event)
	}
}

// Run executes the service loop until a Shutdown command arrives, the
// command channel closes or ctx is cancelled. The loop suspends on a
// three-way wait: cancellation, next command, poll tick. The tick
// branch does nothing while monitoring is stopped.
func (s *Service) Run(ctx context.Context) error {
	log.Info("Monitoring service starting", "poll_interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			log.Info("Monitoring service cancelled")
			return ctx.Err()

		case cmd, ok := <-s.endpoint.Commands():
			if !ok {
				log.Debug("Command channel closed, shutting down")
				return nil
			}
			if cmd.Type == hub.CmdShutdown {
				log.Info("Shutdown command received")
				return nil
			}
			s.handleCommand(cmd, ticker)

		case <-ticker.C:
			if !s.monitoring {
				continue
			}
			s.pollCycle()
		}
	}
}

func (s *Service) shutdown() {
	if s.monitoring {
		s.monitoring = false
		s.endpoint.Publish(hub.Event{Type: hub.EvtMonitoringStopped})
	}
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			log.Warn("Closing bus reader failed", "error", err)
		}
		s.reader = nil
	}
	s.endpoint.Close()
	log.Info("Monitoring service stopped")
}

func (s *Service) handleCommand(cmd hub.Command, ticker *time.Ticker) {
	log.Debug("Handling command", "type", cmd.Type)

	switch cmd.Type {
	case hub.CmdStartMonitoring:
		s.startMonitoring()
	case hub.CmdStopMonitoring:
		s.stopMonitoring()
	case hub.CmdRefreshDevices:
		s.pollCycle()
	case hub.CmdSetFilter:
		s.filter = cmd.Filter
		log.Info("Device filter updated", "filter", cmd.Filter)
		s.pollCycle()
	case hub.CmdSetPollingInterval:
		if cmd.Interval > 0 {
			s.interval = cmd.Interval
			ticker.Reset(cmd.Interval)
			log.Info("Polling interval updated", "interval", cmd.Interval)
		}
	case hub.CmdReloadPolicy:
		s.reloadPolicy()
	default:
		log.Warn("Unknown command ignored", "type", cmd.Type)
	}
}

func (s *Service) startMonitoring() {
	if s.monitoring {
		log.Debug("Monitoring already active")
		return
	}

	s.endpoint.SetStatus(model.MonitoringStatus{State: model.StateStarting})
	s.ensureReader()

	// Monitoring proceeds even without a reader: the service keeps
	// serving commands and emits empty device lists until the
	// permission problem is resolved and a later start retries init.
	s.monitoring = true
	s.endpoint.Publish(hub.Event{Type: hub.EvtMonitoringStarted})
	log.Info("USB monitoring started", "degraded", s.reader == nil)

	devices := s.collectCycle()
	s.endpoint.Publish(hub.Event{Type: hub.EvtDevicesLoaded, Devices: devices})
}

func (s *Service) stopMonitoring() {
	if !s.monitoring {
		return
	}
	s.endpoint.SetStatus(model.MonitoringStatus{State: model.StateStopping})
	s.monitoring = false
	s.endpoint.Publish(hub.Event{Type: hub.EvtMonitoringStopped})
	log.Info("USB monitoring stopped")
}

func (s *Service) reloadPolicy() {
	if s.loadPolicy == nil {
		log.Debug("No policy provider configured, ignoring reload")
		return
	}
	policySet, err := s.loadPolicy()
	if err != nil {
		log.Error("Reloading security policy failed", "error", err)
		s.endpoint.Publish(hub.Event{Type: hub.EvtMonitoringError, Message: "policy reload failed: " + err.Error()})
		return
	}
	s.engine.Evaluator().SetPolicy(policySet)
	log.Info("Security policy reloaded",
		"blacklist_rules", len(policySet.Blacklist),
		"whitelist_rules", len(policySet.Whitelist),
		"blacklist_enabled", policySet.BlacklistEnabled,
		"whitelist_enabled", policySet.WhitelistEnabled)
}

// ensureReader lazily initializes the bus reader, surfacing a
// classified event on failure and leaving the service in degraded mode.
func (s *Service) ensureReader() {
	if s.reader != nil {
		return
	}
	reader, err := s.newReader()
	if err != nil {
		log.Error("USB reader initialization failed", "error", err)
		s.publishBusError(err)
		return
	}
	s.reader = reader
	log.Info("USB reader initialized")
}

// pollCycle performs one snapshot+diff+emit pass and publishes the
// refreshed device list.
func (s *Service) pollCycle() {
	devices := s.collectCycle()
	s.endpoint.Publish(hub.Event{Type: hub.EvtDevicesUpdated, Devices: devices})
}

// collectCycle runs the diff machinery and returns the currently
// visible device list. Bus failures are surfaced as events and leave
// the previous state untouched so the next tick can retry.
func (s *Service) collectCycle() []model.DeviceSnapshot {
	if s.reader == nil {
		return nil
	}

	snapshot, err := s.reader.Snapshot()
	if err != nil {
		log.Error("Bus snapshot failed", "error", err)
		s.publishBusError(err)
		return s.visibleDevices()
	}

	current := model.FilterByName(snapshot, s.filter)

	changes, next := s.engine.Diff(s.previous, current)
	s.previous = next

	for _, change := range changes {
		s.tracker.Record(change.Device.Key(), change.Device, statusFor(change.Type))
	}

	if len(changes) > 0 {
		log.Debug("Detected device changes", "count", len(changes))
		s.flushAudit()
		s.endpoint.Publish(hub.Event{Type: hub.EvtDevicesChanged, Changes: changes})
		s.publishTelemetry()
	}

	return s.visibleDevices()
}

// visibleDevices lists the devices present in the last diff state,
// excluding disconnect tombstones.
func (s *Service) visibleDevices() []model.DeviceSnapshot {
	devices := make([]model.DeviceSnapshot, 0, len(s.previous))
	for _, dev := range s.previous {
		if dev.Status != model.StatusDisconnected {
			devices = append(devices, dev)
		}
	}
	return devices
}

func (s *Service) publishTelemetry() {
	now := time.Now()
	s.endpoint.PublishTelemetry(hub.Telemetry{
		Statistics:     s.tracker.Statistics(),
		History:        s.tracker.History(),
		SecurityEvents: s.tracker.SecurityEvents(),
		Analytics:      s.tracker.Analytics(now),
	})
}

func (s *Service) flushAudit() {
	if s.audit == nil || len(s.pendingAudit) == 0 {
		return
	}
	if err := s.audit.AppendSecurityEvents(s.pendingAudit); err != nil {
		log.Error("Persisting security events failed", "error", err, "count", len(s.pendingAudit))
	}
	s.pendingAudit = s.pendingAudit[:0]
}

func (s *Service) publishBusError(err error) {
	switch {
	case usb.IsAccessDenied(err):
		s.endpoint.Publish(hub.Event{
			Type:    hub.EvtPermissionError,
			Message: "Insufficient permissions to access USB devices. Run as root or add your user to the plugdev group.",
		})
	case usb.IsUnavailable(err):
		s.endpoint.Publish(hub.Event{Type: hub.EvtUsbUnavailable, Message: err.Error()})
	default:
		s.endpoint.Publish(hub.Event{Type: hub.EvtMonitoringError, Message: err.Error()})
	}
}

func statusFor(change model.ChangeType) model.ConnectionStatus {
	switch change {
	case model.ChangeDisconnected:
		return model.StatusDisconnected
	case model.ChangeReconnected:
		return model.StatusReconnected
	case model.ChangeBlocked:
		return model.StatusBlocked
	default:
		return model.StatusConnected
	}
}

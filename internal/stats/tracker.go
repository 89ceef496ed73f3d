// Package stats maintains per-device counters and the bounded
// connection and security-event history backing analytics queries.
package stats

import (
	"time"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

// historyCap bounds both the connection history and the security event
// log. Oldest entries are evicted first.
const historyCap = 1000

// Tracker owns the statistics map and the capped history buffers. It is
// not safe for concurrent use: the monitoring service goroutine is the
// only writer and readers get copies through the communication hub.
type Tracker struct {
	statistics map[model.DeviceKey]*model.DeviceStatistics
	history    *Ring[model.ConnectionRecord]
	events     *Ring[model.SecurityEvent]
	devices    map[model.DeviceKey]model.DeviceSnapshot
	now        func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statistics: make(map[model.DeviceKey]*model.DeviceStatistics),
		history:    NewRing[model.ConnectionRecord](historyCap),
		events:     NewRing[model.SecurityEvent](historyCap),
		devices:    make(map[model.DeviceKey]model.DeviceSnapshot),
		now:        time.Now,
	}
}

// Record books one emitted change for the given key. Called exactly
// once per change produced by the diff engine.
func (t *Tracker) Record(key model.DeviceKey, device model.DeviceSnapshot, status model.ConnectionStatus) {
	now := t.now()

	t.history.Push(model.ConnectionRecord{Timestamp: now, Key: key, Status: status})
	t.devices[key] = device

	s, ok := t.statistics[key]
	if !ok {
		s = &model.DeviceStatistics{FirstSeen: now}
		t.statistics[key] = s
	}
	s.LastSeen = now

	switch status {
	case model.StatusConnected, model.StatusReconnected:
		s.TotalConnections++
		s.ConnectionCount++
	case model.StatusDisconnected:
		s.TotalDisconnections++
		if s.ConnectionCount > 0 {
			s.ConnectionCount--
		}
	case model.StatusBlocked:
		s.TotalBlocked++
	}

	// Duration since the earliest Connected entry for this key still in
	// the history buffer; approximate once old entries have been
	// evicted.
	t.history.Each(func(rec model.ConnectionRecord) bool {
		if rec.Key == key && rec.Status == model.StatusConnected {
			s.ConnectionDuration = now.Sub(rec.Timestamp)
			return false
		}
		return true
	})
}

// RecordSecurityEvent appends a policy decision to the capped event
// log. Implements the policy evaluator's event sink.
func (t *Tracker) RecordSecurityEvent(event model.SecurityEvent) {
	t.events.Push(event)
}

// Statistics returns a copy of the per-key statistics map.
func (t *Tracker) Statistics() map[model.DeviceKey]model.DeviceStatistics {
	out := make(map[model.DeviceKey]model.DeviceStatistics, len(t.statistics))
	for k, v := range t.statistics {
		out[k] = *v
	}
	return out
}

// DeviceStatistics returns the counters for one key.
func (t *Tracker) DeviceStatistics(key model.DeviceKey) (model.DeviceStatistics, bool) {
	s, ok := t.statistics[key]
	if !ok {
		return model.DeviceStatistics{}, false
	}
	return *s, true
}

// History returns a copy of the connection history, oldest first.
func (t *Tracker) History() []model.ConnectionRecord {
	return t.history.Items()
}

// DeviceHistory returns the history entries for one key, oldest first.
func (t *Tracker) DeviceHistory(key model.DeviceKey) []model.ConnectionRecord {
	var out []model.ConnectionRecord
	t.history.Each(func(rec model.ConnectionRecord) bool {
		if rec.Key == key {
			out = append(out, rec)
		}
		return true
	})
	return out
}

// SecurityEvents returns a copy of the security event log, oldest
// first.
func (t *Tracker) SecurityEvents() []model.SecurityEvent {
	return t.events.Items()
}

// Analytics aggregates the tracker state at the given instant. This is
// a full scan of the history buffer per call, not an incrementally
// maintained view.
func (t *Tracker) Analytics(now time.Time) model.DeviceAnalytics {
	a := model.DeviceAnalytics{
		ClassDistribution:  make(map[uint8]uint32),
		VendorDistribution: make(map[uint16]uint32),
		TotalDevicesSeen:   uint32(t.history.Len()),
		UniqueDevices:      uint32(len(t.statistics)),
		SecurityViolations: uint32(t.events.Len()),
	}

	for key, s := range t.statistics {
		a.BlockedDevices += s.TotalBlocked
		if dev, ok := t.devices[key]; ok {
			a.ClassDistribution[dev.DeviceClass]++
			a.VendorDistribution[dev.VendorID]++
		}
	}

	// Hourly Connected counts over the trailing 24 hours.
	dayAgo := now.Add(-24 * time.Hour)
	a.ConnectionFrequency = make([]model.FrequencyBucket, 24)
	for hour := 0; hour < 24; hour++ {
		a.ConnectionFrequency[hour].HourStart = dayAgo.Add(time.Duration(hour) * time.Hour)
	}
	t.history.Each(func(rec model.ConnectionRecord) bool {
		if rec.Status != model.StatusConnected {
			return true
		}
		if rec.Timestamp.Before(dayAgo) || !rec.Timestamp.Before(now) {
			return true
		}
		hour := int(rec.Timestamp.Sub(dayAgo) / time.Hour)
		if hour >= 0 && hour < 24 {
			a.ConnectionFrequency[hour].Connections++
		}
		return true
	})

	return a
}

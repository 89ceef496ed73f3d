package stats

import (
	"testing"
	"time"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

func testKey(addr uint8) model.DeviceKey {
	return model.DeviceKey{VendorID: 0x046d, ProductID: 0xc31c, Bus: 1, Address: addr}
}

func testDevice(addr uint8) model.DeviceSnapshot {
	return model.DeviceSnapshot{
		BusNumber:     1,
		DeviceAddress: addr,
		VendorID:      0x046d,
		ProductID:     0xc31c,
		DeviceClass:   0x03,
	}
}

// fixedClock returns a now func that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker()
	key, dev := testKey(4), testDevice(4)

	tr.Record(key, dev, model.StatusConnected)
	tr.Record(key, dev, model.StatusDisconnected)
	tr.Record(key, dev, model.StatusReconnected)

	s, ok := tr.DeviceStatistics(key)
	if !ok {
		t.Fatal("no statistics for recorded key")
	}
	if s.TotalConnections != 2 {
		t.Errorf("TotalConnections = %d, want 2", s.TotalConnections)
	}
	if s.TotalDisconnections != 1 {
		t.Errorf("TotalDisconnections = %d, want 1", s.TotalDisconnections)
	}
	if s.ConnectionCount != 1 {
		t.Errorf("ConnectionCount = %d, want 1", s.ConnectionCount)
	}
	if got := s.TotalConnections - s.TotalDisconnections; got != s.ConnectionCount {
		t.Errorf("counter invariant violated: %d - %d != %d",
			s.TotalConnections, s.TotalDisconnections, s.ConnectionCount)
	}
}

func TestTrackerConnectionCountFloor(t *testing.T) {
	tr := NewTracker()
	key, dev := testKey(4), testDevice(4)

	// A disconnect with no prior connect must not underflow.
	tr.Record(key, dev, model.StatusDisconnected)

	s, _ := tr.DeviceStatistics(key)
	if s.ConnectionCount != 0 {
		t.Errorf("ConnectionCount = %d, want 0", s.ConnectionCount)
	}
	if s.TotalDisconnections != 1 {
		t.Errorf("TotalDisconnections = %d, want 1", s.TotalDisconnections)
	}
}

func TestTrackerBlockedDoesNotCountAsConnection(t *testing.T) {
	tr := NewTracker()
	key, dev := testKey(4), testDevice(4)

	tr.Record(key, dev, model.StatusBlocked)

	s, _ := tr.DeviceStatistics(key)
	if s.TotalBlocked != 1 {
		t.Errorf("TotalBlocked = %d, want 1", s.TotalBlocked)
	}
	if s.TotalConnections != 0 || s.ConnectionCount != 0 {
		t.Errorf("blocked device got connection counters: %+v", s)
	}
}

func TestTrackerFirstSeenIsStable(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tr.now = fixedClock(start, time.Minute)
	key, dev := testKey(4), testDevice(4)

	tr.Record(key, dev, model.StatusConnected)
	tr.Record(key, dev, model.StatusDisconnected)

	s, _ := tr.DeviceStatistics(key)
	if !s.FirstSeen.Equal(start) {
		t.Errorf("FirstSeen = %v, want %v", s.FirstSeen, start)
	}
	if !s.LastSeen.After(s.FirstSeen) {
		t.Errorf("LastSeen %v not after FirstSeen %v", s.LastSeen, s.FirstSeen)
	}
}

func TestTrackerConnectionDuration(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tr.now = fixedClock(start, time.Minute)
	key, dev := testKey(4), testDevice(4)

	tr.Record(key, dev, model.StatusConnected)    // 10:00
	tr.Record(key, dev, model.StatusDisconnected) // 10:01
	tr.Record(key, dev, model.StatusReconnected)  // 10:02

	s, _ := tr.DeviceStatistics(key)
	// Measured against the earliest Connected entry still in history.
	if s.ConnectionDuration != 2*time.Minute {
		t.Errorf("ConnectionDuration = %v, want 2m", s.ConnectionDuration)
	}
}

func TestTrackerHistoryBounded(t *testing.T) {
	tr := NewTracker()
	dev := testDevice(4)

	for i := 0; i < historyCap+50; i++ {
		tr.Record(testKey(uint8(i%200)), dev, model.StatusConnected)
	}

	if got := len(tr.History()); got != historyCap {
		t.Errorf("history length = %d, want %d", got, historyCap)
	}
}

func TestTrackerSecurityEventsBounded(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < historyCap+10; i++ {
		tr.RecordSecurityEvent(model.SecurityEvent{
			Type:   model.EventDeviceAllowed,
			Action: model.ActionAllowed,
		})
	}

	if got := len(tr.SecurityEvents()); got != historyCap {
		t.Errorf("event log length = %d, want %d", got, historyCap)
	}
}

func TestTrackerDeviceHistory(t *testing.T) {
	tr := NewTracker()
	a, b := testKey(4), testKey(5)
	dev := testDevice(4)

	tr.Record(a, dev, model.StatusConnected)
	tr.Record(b, dev, model.StatusConnected)
	tr.Record(a, dev, model.StatusDisconnected)

	recs := tr.DeviceHistory(a)
	if len(recs) != 2 {
		t.Fatalf("got %d records for key, want 2", len(recs))
	}
	if recs[0].Status != model.StatusConnected || recs[1].Status != model.StatusDisconnected {
		t.Errorf("record order = %s, %s", recs[0].Status, recs[1].Status)
	}
}

func TestTrackerAnalytics(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now.Add(-30 * time.Minute) }

	keyboard := testDevice(4)
	hub := model.DeviceSnapshot{
		BusNumber: 1, DeviceAddress: 5,
		VendorID: 0x05e3, ProductID: 0x0608, DeviceClass: 0x09,
	}

	tr.Record(keyboard.Key(), keyboard, model.StatusConnected)
	tr.Record(hub.Key(), hub, model.StatusConnected)
	tr.Record(hub.Key(), hub, model.StatusBlocked)
	tr.RecordSecurityEvent(model.SecurityEvent{Type: model.EventDeviceBlocked, Action: model.ActionBlocked})

	a := tr.Analytics(now)

	if a.UniqueDevices != 2 {
		t.Errorf("UniqueDevices = %d, want 2", a.UniqueDevices)
	}
	if a.TotalDevicesSeen != 3 {
		t.Errorf("TotalDevicesSeen = %d, want 3", a.TotalDevicesSeen)
	}
	if a.BlockedDevices != 1 {
		t.Errorf("BlockedDevices = %d, want 1", a.BlockedDevices)
	}
	if a.SecurityViolations != 1 {
		t.Errorf("SecurityViolations = %d, want 1", a.SecurityViolations)
	}
	if a.ClassDistribution[0x03] != 1 || a.ClassDistribution[0x09] != 1 {
		t.Errorf("ClassDistribution = %v", a.ClassDistribution)
	}
	if a.VendorDistribution[0x046d] != 1 || a.VendorDistribution[0x05e3] != 1 {
		t.Errorf("VendorDistribution = %v", a.VendorDistribution)
	}

	if len(a.ConnectionFrequency) != 24 {
		t.Fatalf("got %d frequency buckets, want 24", len(a.ConnectionFrequency))
	}
	// Both Connected records landed 30 minutes ago, in the final bucket.
	last := a.ConnectionFrequency[23]
	if last.Connections != 2 {
		t.Errorf("last bucket = %d connections, want 2", last.Connections)
	}
	var total uint32
	for _, b := range a.ConnectionFrequency {
		total += b.Connections
	}
	if total != 2 {
		t.Errorf("total bucketed connections = %d, want 2", total)
	}
}

func TestTrackerAnalyticsExcludesOldRecords(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now.Add(-25 * time.Hour) }
	dev := testDevice(4)

	tr.Record(dev.Key(), dev, model.StatusConnected)

	a := tr.Analytics(now)
	for i, b := range a.ConnectionFrequency {
		if b.Connections != 0 {
			t.Errorf("bucket %d counted a record older than 24h", i)
		}
	}
}

package policy

import (
	"testing"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

type captureSink struct {
	events []model.SecurityEvent
}

func (c *captureSink) RecordSecurityEvent(event model.SecurityEvent) {
	c.events = append(c.events, event)
}

func strPtr(s string) *string { return &s }

func u16Ptr(v uint16) *uint16 { return &v }

func u8Ptr(v uint8) *uint8 { return &v }

func device(vid, pid uint16) model.DeviceSnapshot {
	return model.DeviceSnapshot{
		BusNumber:     1,
		DeviceAddress: 3,
		VendorID:      vid,
		ProductID:     pid,
	}
}

func TestEvaluateAllowedByDefault(t *testing.T) {
	sink := &captureSink{}
	e := NewEvaluator(model.PolicySet{}, sink)

	v := e.Evaluate(device(0x046d, 0xc31c))

	if v.Blocked {
		t.Fatal("empty policy blocked a device")
	}
	if v.Action != model.ActionAllowed {
		t.Errorf("action = %s, want %s", v.Action, model.ActionAllowed)
	}
	if len(sink.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Type != model.EventDeviceAllowed {
		t.Errorf("event type = %s, want %s", ev.Type, model.EventDeviceAllowed)
	}
	if ev.Reason != "Device passed security checks" {
		t.Errorf("reason = %q", ev.Reason)
	}
	if ev.ID == "" {
		t.Error("event has no ID")
	}
}

func TestEvaluateBlacklist(t *testing.T) {
	tests := []struct {
		name    string
		rule    model.DeviceRule
		device  model.DeviceSnapshot
		blocked bool
	}{
		{
			name:    "vendor match",
			rule:    model.DeviceRule{VendorID: u16Ptr(0x1234), Reason: "bad vendor", Enabled: true},
			device:  device(0x1234, 0x0001),
			blocked: true,
		},
		{
			name:    "vendor mismatch",
			rule:    model.DeviceRule{VendorID: u16Ptr(0x1234), Reason: "bad vendor", Enabled: true},
			device:  device(0x5678, 0x0001),
			blocked: false,
		},
		{
			name:    "disabled rule ignored",
			rule:    model.DeviceRule{VendorID: u16Ptr(0x1234), Reason: "bad vendor", Enabled: false},
			device:  device(0x1234, 0x0001),
			blocked: false,
		},
		{
			name: "all present fields must match",
			rule: model.DeviceRule{
				VendorID:  u16Ptr(0x1234),
				ProductID: u16Ptr(0x9999),
				Reason:    "specific model",
				Enabled:   true,
			},
			device:  device(0x1234, 0x0001),
			blocked: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(model.PolicySet{
				BlacklistEnabled: true,
				Blacklist:        []model.DeviceRule{tt.rule},
			}, nil)
			v := e.Evaluate(tt.device)
			if v.Blocked != tt.blocked {
				t.Errorf("blocked = %v, want %v", v.Blocked, tt.blocked)
			}
			if tt.blocked && v.Reason != tt.rule.Reason {
				t.Errorf("reason = %q, want %q", v.Reason, tt.rule.Reason)
			}
		})
	}
}

func TestEvaluateBlacklistDisabledGlobally(t *testing.T) {
	e := NewEvaluator(model.PolicySet{
		BlacklistEnabled: false,
		Blacklist: []model.DeviceRule{
			{VendorID: u16Ptr(0x1234), Reason: "bad vendor", Enabled: true},
		},
	}, nil)

	if v := e.Evaluate(device(0x1234, 0x0001)); v.Blocked {
		t.Error("disabled blacklist still blocked a device")
	}
}

func TestEvaluateWhitelistPrecedence(t *testing.T) {
	// A device that matches both lists: whitelist mode admits it without
	// consulting the blacklist.
	e := NewEvaluator(model.PolicySet{
		BlacklistEnabled: true,
		WhitelistEnabled: true,
		Blacklist: []model.DeviceRule{
			{VendorID: u16Ptr(0x046d), Reason: "blacklisted vendor", Enabled: true},
		},
		Whitelist: []model.DeviceRule{
			{VendorID: u16Ptr(0x046d), Reason: "trusted", Enabled: true},
		},
	}, nil)

	if v := e.Evaluate(device(0x046d, 0xc31c)); v.Blocked {
		t.Errorf("whitelisted device blocked: %q", v.Reason)
	}
}

func TestEvaluateWhitelistBlocksUnlisted(t *testing.T) {
	sink := &captureSink{}
	e := NewEvaluator(model.PolicySet{
		WhitelistEnabled: true,
		Whitelist: []model.DeviceRule{
			{VendorID: u16Ptr(0x046d), Reason: "trusted", Enabled: true},
		},
	}, sink)

	v := e.Evaluate(device(0x5678, 0x0001))

	if !v.Blocked {
		t.Fatal("unlisted device allowed in whitelist mode")
	}
	if v.Reason != "Device not in whitelist" {
		t.Errorf("reason = %q, want %q", v.Reason, "Device not in whitelist")
	}
	if len(sink.events) != 1 || sink.events[0].Action != model.ActionBlocked {
		t.Errorf("events = %+v, want one BLOCKED", sink.events)
	}
}

func TestEvaluateEmptyReasonFallback(t *testing.T) {
	e := NewEvaluator(model.PolicySet{
		BlacklistEnabled: true,
		Blacklist: []model.DeviceRule{
			{VendorID: u16Ptr(0x1234), Enabled: true},
		},
	}, nil)

	v := e.Evaluate(device(0x1234, 0x0001))
	if v.Reason != "Unknown reason" {
		t.Errorf("reason = %q, want %q", v.Reason, "Unknown reason")
	}
}

func TestRuleStringMatchers(t *testing.T) {
	name := "Logitech USB Receiver"
	dev := device(0x046d, 0xc52b)
	dev.Product = &name
	dev.Manufacturer = strPtr("Logitech")

	tests := []struct {
		name  string
		rule  model.DeviceRule
		match bool
	}{
		{"substring case-insensitive", model.DeviceRule{Product: strPtr("logitech"), Enabled: true}, true},
		{"substring middle", model.DeviceRule{Product: strPtr("usb receiver"), Enabled: true}, true},
		{"no match", model.DeviceRule{Product: strPtr("kingston"), Enabled: true}, false},
		{"manufacturer matcher", model.DeviceRule{Manufacturer: strPtr("LOGI"), Enabled: true}, true},
		{"serial matcher on absent descriptor", model.DeviceRule{SerialNumber: strPtr("ABC"), Enabled: true}, false},
		{"class matcher", model.DeviceRule{DeviceClass: u8Ptr(0x09), Enabled: true}, false},
		{"empty rule is wildcard", model.DeviceRule{Enabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(dev); got != tt.match {
				t.Errorf("Matches = %v, want %v", got, tt.match)
			}
		})
	}
}

func TestSetPolicyTakesEffect(t *testing.T) {
	e := NewEvaluator(model.PolicySet{}, nil)
	dev := device(0x1234, 0x0001)

	if v := e.Evaluate(dev); v.Blocked {
		t.Fatal("device blocked before policy set")
	}

	e.SetPolicy(model.PolicySet{
		BlacklistEnabled: true,
		Blacklist: []model.DeviceRule{
			{VendorID: u16Ptr(0x1234), Reason: "now banned", Enabled: true},
		},
	})

	if v := e.Evaluate(dev); !v.Blocked {
		t.Error("device allowed after blocking policy was installed")
	}
}

package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func u16Ptr(v uint16) *uint16 { return &v }

func strPtr(s string) *string { return &s }

func TestRuleRoundTrip(t *testing.T) {
	store := newTestStorage(t)

	added, err := store.AddRule(model.Blacklist, model.DeviceRule{
		VendorID: u16Ptr(0x1234),
		Product:  strPtr("Rubber Ducky"),
		Reason:   "known attack tool",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if added.ID == "" {
		t.Fatal("AddRule did not assign an ID")
	}
	if added.CreatedAt.IsZero() {
		t.Fatal("AddRule did not set CreatedAt")
	}

	rules, err := store.ListRules(model.Blacklist)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	got := rules[0]
	if got.ID != added.ID {
		t.Errorf("ID = %s, want %s", got.ID, added.ID)
	}
	if got.VendorID == nil || *got.VendorID != 0x1234 {
		t.Errorf("VendorID = %v", got.VendorID)
	}
	if got.ProductID != nil {
		t.Errorf("ProductID = %v, want nil", got.ProductID)
	}
	if got.Product == nil || *got.Product != "Rubber Ducky" {
		t.Errorf("Product = %v", got.Product)
	}
	if got.Reason != "known attack tool" {
		t.Errorf("Reason = %q", got.Reason)
	}
	if !got.Enabled {
		t.Error("rule not enabled")
	}
}

func TestRulesPartitionedByList(t *testing.T) {
	store := newTestStorage(t)

	if _, err := store.AddRule(model.Blacklist, model.DeviceRule{Reason: "bl", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddRule(model.Whitelist, model.DeviceRule{Reason: "wl", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	bl, err := store.ListRules(model.Blacklist)
	if err != nil {
		t.Fatal(err)
	}
	wl, err := store.ListRules(model.Whitelist)
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 1 || bl[0].Reason != "bl" {
		t.Errorf("blacklist = %+v", bl)
	}
	if len(wl) != 1 || wl[0].Reason != "wl" {
		t.Errorf("whitelist = %+v", wl)
	}
}

func TestGetRule(t *testing.T) {
	store := newTestStorage(t)

	added, err := store.AddRule(model.Whitelist, model.DeviceRule{Reason: "trusted", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	rule, list, err := store.GetRule(added.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if list != model.Whitelist {
		t.Errorf("list = %s, want %s", list, model.Whitelist)
	}
	if rule.Reason != "trusted" {
		t.Errorf("Reason = %q", rule.Reason)
	}

	if _, _, err := store.GetRule("missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("got %v, want ErrRuleNotFound", err)
	}
}

func TestDeleteRule(t *testing.T) {
	store := newTestStorage(t)

	added, err := store.AddRule(model.Blacklist, model.DeviceRule{Reason: "r", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteRule(added.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := store.DeleteRule(added.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second delete: got %v, want ErrRuleNotFound", err)
	}
}

func TestSetRuleEnabled(t *testing.T) {
	store := newTestStorage(t)

	added, err := store.AddRule(model.Blacklist, model.DeviceRule{Reason: "r", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetRuleEnabled(added.ID, false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}

	rule, _, err := store.GetRule(added.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rule.Enabled {
		t.Error("rule still enabled after disable")
	}

	if err := store.SetRuleEnabled("missing", true); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("got %v, want ErrRuleNotFound", err)
	}
}

func TestLoadPolicyDefaults(t *testing.T) {
	store := newTestStorage(t)

	policy, err := store.LoadPolicy()
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if !policy.BlacklistEnabled {
		t.Error("blacklist not enabled by default")
	}
	if policy.WhitelistEnabled {
		t.Error("whitelist enabled by default")
	}
	if len(policy.Blacklist) != 0 || len(policy.Whitelist) != 0 {
		t.Errorf("fresh store has rules: %+v", policy)
	}
}

func TestSetListEnabled(t *testing.T) {
	store := newTestStorage(t)

	if err := store.SetListEnabled(model.Whitelist, true); err != nil {
		t.Fatalf("SetListEnabled: %v", err)
	}
	if err := store.SetListEnabled(model.Blacklist, false); err != nil {
		t.Fatalf("SetListEnabled: %v", err)
	}

	policy, err := store.LoadPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if !policy.WhitelistEnabled || policy.BlacklistEnabled {
		t.Errorf("policy flags = blacklist %v whitelist %v, want false/true",
			policy.BlacklistEnabled, policy.WhitelistEnabled)
	}
}

func TestSecurityEventRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC().Truncate(time.Second)

	events := []model.SecurityEvent{
		{
			ID:        "ev-1",
			Timestamp: now.Add(-time.Minute),
			Type:      model.EventDeviceAllowed,
			Action:    model.ActionAllowed,
			Reason:    "Device passed security checks",
			Device: model.DeviceSnapshot{
				VendorID: 0x046d, ProductID: 0xc31c, BusNumber: 1, DeviceAddress: 4,
				Product: strPtr("USB Keyboard"),
			},
		},
		{
			ID:        "ev-2",
			Timestamp: now,
			Type:      model.EventDeviceBlocked,
			Action:    model.ActionBlocked,
			Reason:    "known attack tool",
			Device: model.DeviceSnapshot{
				VendorID: 0x1234, ProductID: 0x0001, BusNumber: 2, DeviceAddress: 7,
			},
		},
	}
	if err := store.AppendSecurityEvents(events); err != nil {
		t.Fatalf("AppendSecurityEvents: %v", err)
	}

	got, err := store.ListSecurityEvents(10)
	if err != nil {
		t.Fatalf("ListSecurityEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "ev-2" || got[1].ID != "ev-1" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Type != model.EventDeviceBlocked || got[0].Action != model.ActionBlocked {
		t.Errorf("event = %+v", got[0])
	}
	if got[0].Device.VendorID != 0x1234 || got[0].Device.BusNumber != 2 {
		t.Errorf("device = %+v", got[0].Device)
	}
	if got[1].Device.Product == nil || *got[1].Device.Product != "USB Keyboard" {
		t.Errorf("product = %v", got[1].Device.Product)
	}
}

func TestListSecurityEventsLimit(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC()

	var events []model.SecurityEvent
	for i := 0; i < 5; i++ {
		events = append(events, model.SecurityEvent{
			ID:        generateID(),
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Type:      model.EventDeviceAllowed,
			Action:    model.ActionAllowed,
		})
	}
	if err := store.AppendSecurityEvents(events); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListSecurityEvents(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("got %d events, want 3", len(got))
	}
}

func TestAppendSecurityEventsEmpty(t *testing.T) {
	store := newTestStorage(t)
	if err := store.AppendSecurityEvents(nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

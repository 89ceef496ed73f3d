package model

import (
	"strings"
	"time"
)

// SecurityEventType classifies a security event.
type SecurityEventType string

const (
	EventDeviceBlocked      SecurityEventType = "DEVICE_BLOCKED"
	EventDeviceAllowed      SecurityEventType = "DEVICE_ALLOWED"
	EventRuleViolation      SecurityEventType = "RULE_VIOLATION"
	EventSuspiciousActivity SecurityEventType = "SUSPICIOUS_ACTIVITY"
)

// SecurityAction is the action taken when a security decision was made.
type SecurityAction string

const (
	ActionBlocked SecurityAction = "BLOCKED"
	ActionAllowed SecurityAction = "ALLOWED"
	ActionWarned  SecurityAction = "WARNED"
	ActionLogged  SecurityAction = "LOGGED"
)

// SecurityEvent records one policy decision for one device.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      SecurityEventType `json:"event_type"`
	Device    DeviceSnapshot    `json:"device"`
	Reason    string            `json:"reason"`
	Action    SecurityAction    `json:"action_taken"`
}

// RuleList names which rule list a rule belongs to.
type RuleList string

const (
	Blacklist RuleList = "blacklist"
	Whitelist RuleList = "whitelist"
)

// DeviceRule matches devices for the blacklist or whitelist. All
// matcher fields are optional; an absent field is a wildcard. A rule
// matches a device only if every present field matches.
type DeviceRule struct {
	ID           string    `json:"id"`
	VendorID     *uint16   `json:"vendor_id,omitempty"`
	ProductID    *uint16   `json:"product_id,omitempty"`
	DeviceClass  *uint8    `json:"device_class,omitempty"`
	Manufacturer *string   `json:"manufacturer,omitempty"`
	Product      *string   `json:"product,omitempty"`
	SerialNumber *string   `json:"serial_number,omitempty"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	Enabled      bool      `json:"enabled"`
}

// Matches reports whether the rule applies to the device. String
// matchers are case-insensitive substring tests against the device's
// string descriptors; a string matcher never matches a device whose
// corresponding descriptor is absent.
func (r DeviceRule) Matches(device DeviceSnapshot) bool {
	if r.VendorID != nil && device.VendorID != *r.VendorID {
		return false
	}
	if r.ProductID != nil && device.ProductID != *r.ProductID {
		return false
	}
	if r.DeviceClass != nil && device.DeviceClass != *r.DeviceClass {
		return false
	}
	if !matchSubstring(r.Manufacturer, device.Manufacturer) {
		return false
	}
	if !matchSubstring(r.Product, device.Product) {
		return false
	}
	if !matchSubstring(r.SerialNumber, device.SerialNumber) {
		return false
	}
	return true
}

func matchSubstring(pattern, value *string) bool {
	if pattern == nil {
		return true
	}
	if value == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*value), strings.ToLower(*pattern))
}

// PolicySet is the complete security policy as supplied by the
// configuration provider.
type PolicySet struct {
	BlacklistEnabled bool         `json:"blacklist_enabled"`
	WhitelistEnabled bool         `json:"whitelist_enabled"`
	Blacklist        []DeviceRule `json:"blacklist"`
	Whitelist        []DeviceRule `json:"whitelist"`
}

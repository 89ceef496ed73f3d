// Package policy decides whether a newly connected device is allowed
// onto the bus, based on the configured blacklist and whitelist rules.
package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/KnivInstitute/IronWatch/internal/model"
)

// EventSink receives exactly one security event per evaluation.
type EventSink interface {
	RecordSecurityEvent(event model.SecurityEvent)
}

// Verdict is the outcome of evaluating one device.
type Verdict struct {
	Blocked bool
	Reason  string
	Action  model.SecurityAction
}

// Evaluator applies the active policy set to devices. It is used only
// from the monitoring service goroutine.
type Evaluator struct {
	policy model.PolicySet
	sink   EventSink
	now    func() time.Time
}

// NewEvaluator creates an evaluator for the given policy. sink may be
// nil when no event log is wanted.
func NewEvaluator(policy model.PolicySet, sink EventSink) *Evaluator {
	return &Evaluator{policy: policy, sink: sink, now: time.Now}
}

// SetPolicy replaces the active policy set. Takes effect for the next
// evaluation; already-connected devices are not re-evaluated.
func (e *Evaluator) SetPolicy(policy model.PolicySet) {
	e.policy = policy
}

// Policy returns the active policy set.
func (e *Evaluator) Policy() model.PolicySet {
	return e.policy
}

// Evaluate decides allow or block for a device on first connection and
// records one security event for the decision.
//
// Whitelist mode takes precedence: while it is enabled a device must
// match at least one enabled whitelist rule or it is blocked without
// the blacklist being consulted. Otherwise the first enabled blacklist
// rule that matches blocks the device with that rule's reason.
func (e *Evaluator) Evaluate(device model.DeviceSnapshot) Verdict {
	if e.policy.WhitelistEnabled && !matchesAny(e.policy.Whitelist, device) {
		return e.block(device, "Device not in whitelist")
	}

	if e.policy.BlacklistEnabled {
		for _, rule := range e.policy.Blacklist {
			if rule.Enabled && rule.Matches(device) {
				return e.block(device, rule.Reason)
			}
		}
	}

	e.record(model.SecurityEvent{
		ID:        generateID(),
		Timestamp: e.now(),
		Type:      model.EventDeviceAllowed,
		Device:    device,
		Reason:    "Device passed security checks",
		Action:    model.ActionAllowed,
	})
	return Verdict{Action: model.ActionAllowed}
}

func (e *Evaluator) block(device model.DeviceSnapshot, reason string) Verdict {
	if reason == "" {
		reason = "Unknown reason"
	}
	e.record(model.SecurityEvent{
		ID:        generateID(),
		Timestamp: e.now(),
		Type:      model.EventDeviceBlocked,
		Device:    device,
		Reason:    reason,
		Action:    model.ActionBlocked,
	})
	return Verdict{Blocked: true, Reason: reason, Action: model.ActionBlocked}
}

func (e *Evaluator) record(event model.SecurityEvent) {
	if e.sink != nil {
		e.sink.RecordSecurityEvent(event)
	}
}

func matchesAny(rules []model.DeviceRule, device model.DeviceSnapshot) bool {
	for _, rule := range rules {
		if rule.Enabled && rule.Matches(device) {
			return true
		}
	}
	return false
}

func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

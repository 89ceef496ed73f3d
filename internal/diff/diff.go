// Package diff classifies device changes between two bus snapshots.
package diff

import (
	"time"

	"github.com/KnivInstitute/IronWatch/internal/model"
	"github.com/KnivInstitute/IronWatch/internal/policy"
)

// Engine compares snapshots and routes newly seen devices through the
// security evaluator. The engine itself keeps no state; the caller owns
// the previous-snapshot map.
type Engine struct {
	evaluator *policy.Evaluator
	now       func() time.Time
}

// NewEngine creates a diff engine backed by the given evaluator.
func NewEngine(evaluator *policy.Evaluator) *Engine {
	return &Engine{evaluator: evaluator, now: time.Now}
}

// Evaluator returns the engine's security evaluator.
func (e *Engine) Evaluator() *policy.Evaluator {
	return e.evaluator
}

// Diff classifies every device in current against previous and returns
// the emitted changes plus the map to use as the next previous state.
//
// Disconnects are emitted before connects so that a consumer observes
// "old gone" before "new arrived" when a key churns within one pass.
// Devices present in both snapshots with a non-Disconnected previous
// status are steady state and emit nothing; a key whose previous status
// is Disconnected and which is present again is a reconnect, never a
// fresh connect. Only brand-new keys are evaluated against the security
// policy.
func (e *Engine) Diff(previous map[model.DeviceKey]model.DeviceSnapshot, current []model.DeviceSnapshot) ([]model.DeviceChange, map[model.DeviceKey]model.DeviceSnapshot) {
	currentMap := make(map[model.DeviceKey]model.DeviceSnapshot, len(current))
	for _, dev := range current {
		currentMap[dev.Key()] = dev
	}

	var changes []model.DeviceChange

	// Absent keys become Disconnected exactly once and stay in the next
	// state map as tombstones, so that the same key showing up again is
	// classified Reconnected rather than Connected.
	tombstones := make(map[model.DeviceKey]model.DeviceSnapshot)
	for key, prev := range previous {
		if _, ok := currentMap[key]; ok {
			continue
		}
		gone := prev
		if gone.Status != model.StatusDisconnected {
			gone.Status = model.StatusDisconnected
			gone.Timestamp = e.now()
			changes = append(changes, model.DeviceChange{Type: model.ChangeDisconnected, Device: gone})
		}
		tombstones[key] = gone
	}

	for key, dev := range currentMap {
		prev, seen := previous[key]
		switch {
		case !seen:
			verdict := e.evaluator.Evaluate(dev)
			if verdict.Blocked {
				dev.Status = model.StatusBlocked
				changes = append(changes, model.DeviceChange{Type: model.ChangeBlocked, Device: dev})
			} else {
				dev.Status = model.StatusConnected
				changes = append(changes, model.DeviceChange{Type: model.ChangeConnected, Device: dev})
			}
			currentMap[key] = dev
		case prev.Status == model.StatusDisconnected:
			dev.Status = model.StatusReconnected
			changes = append(changes, model.DeviceChange{Type: model.ChangeReconnected, Device: dev})
			currentMap[key] = dev
		default:
			// Steady state: carry the previous status forward so a
			// blocked device stays blocked across polls.
			dev.Status = prev.Status
			currentMap[key] = dev
		}
	}

	for key, gone := range tombstones {
		currentMap[key] = gone
	}

	return changes, currentMap
}

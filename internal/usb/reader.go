// Package usb reads point-in-time snapshots of the host USB bus.
package usb

import (
	"github.com/KnivInstitute/IronWatch/internal/model"
)

// Reader enumerates all devices currently visible to the USB subsystem.
// Implementations hold no persistent device handles between calls.
type Reader interface {
	// Snapshot returns one DeviceSnapshot per visible device. A device
	// whose string descriptors cannot be read is still included with
	// nil strings; a device whose fixed descriptor cannot be read is
	// omitted. Snapshot fails only when the bus itself cannot be
	// queried, with a classified *BusError.
	Snapshot() ([]model.DeviceSnapshot, error)
	Close() error
}

// New returns the platform reader for the current OS.
func New() (Reader, error) {
	return newPlatformReader()
}

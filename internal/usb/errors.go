package usb

import (
	"errors"
	"fmt"
)

// BusErrorKind classifies bus-level failures so callers can surface an
// actionable message for permission problems.
type BusErrorKind int

const (
	// KindAccessDenied means the OS denied access to the USB subsystem.
	KindAccessDenied BusErrorKind = iota
	// KindUnavailable means the USB subsystem cannot be queried at all.
	KindUnavailable
	// KindReadFailed means enumeration itself failed part-way.
	KindReadFailed
)

func (k BusErrorKind) String() string {
	switch k {
	case KindAccessDenied:
		return "access denied"
	case KindUnavailable:
		return "unavailable"
	default:
		return "read failed"
	}
}

// BusError is a classified bus-level failure. Per-device read failures
// are never reported as BusError; those are swallowed and the device is
// omitted from the snapshot.
type BusError struct {
	Kind BusErrorKind
	Path string
	Err  error
}

func (e *BusError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("usb bus %s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("usb bus %s: %v", e.Kind, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// IsAccessDenied reports whether err is a BusError caused by missing
// permissions.
func IsAccessDenied(err error) bool {
	return errKind(err) == KindAccessDenied
}

// IsUnavailable reports whether err is a BusError caused by a missing
// or unsupported USB subsystem.
func IsUnavailable(err error) bool {
	return errKind(err) == KindUnavailable
}

func errKind(err error) BusErrorKind {
	var be *BusError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindReadFailed
}

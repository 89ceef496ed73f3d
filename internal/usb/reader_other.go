//go:build !linux

package usb

import "errors"

func newPlatformReader() (Reader, error) {
	return nil, &BusError{
		Kind: KindUnavailable,
		Err:  errors.New("usb enumeration is not supported on this platform"),
	}
}

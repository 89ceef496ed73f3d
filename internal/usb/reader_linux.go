//go:build linux

package usb

func newPlatformReader() (Reader, error) {
	return NewSysfsReader(DefaultSysfsRoot), nil
}

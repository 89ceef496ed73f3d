package usb

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
)

// DefaultSysfsRoot is where the kernel exposes USB devices on Linux.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

// SysfsReader enumerates USB devices by walking a sysfs device tree.
// The root is injectable so tests can point it at a fixture tree.
type SysfsReader struct {
	root string
	now  func() time.Time
}

// NewSysfsReader creates a reader rooted at the given sysfs directory.
// An empty root selects DefaultSysfsRoot.
func NewSysfsReader(root string) *SysfsReader {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsReader{root: root, now: time.Now}
}

// Snapshot walks the sysfs tree and returns all parseable devices.
func (r *SysfsReader) Snapshot() ([]model.DeviceSnapshot, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, classifyDirError(r.root, err)
	}

	devices := make([]model.DeviceSnapshot, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()

		// Device entries look like "1-1" or "2-1.4" and root hubs like
		// "usb1"; interface entries contain a ':' and carry no device
		// descriptor of their own.
		if strings.Contains(name, ":") {
			continue
		}

		dev, err := r.parseDevice(filepath.Join(r.root, name))
		if err != nil {
			log.Debug("Skipping unreadable sysfs device", "entry", name, "error", err)
			continue
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

// Close is a no-op; the sysfs reader holds no handles between calls.
func (r *SysfsReader) Close() error {
	return nil
}

// parseDevice reads one device directory. busnum, devnum, idVendor and
// idProduct must be present; everything else is best-effort.
func (r *SysfsReader) parseDevice(path string) (model.DeviceSnapshot, error) {
	var dev model.DeviceSnapshot

	busnum, err := readUintFile(filepath.Join(path, "busnum"), 10, 8)
	if err != nil {
		return dev, err
	}
	devnum, err := readUintFile(filepath.Join(path, "devnum"), 10, 8)
	if err != nil {
		return dev, err
	}
	vendor, err := readUintFile(filepath.Join(path, "idVendor"), 16, 16)
	if err != nil {
		return dev, err
	}
	product, err := readUintFile(filepath.Join(path, "idProduct"), 16, 16)
	if err != nil {
		return dev, err
	}

	dev = model.DeviceSnapshot{
		BusNumber:     uint8(busnum),
		DeviceAddress: uint8(devnum),
		VendorID:      uint16(vendor),
		ProductID:     uint16(product),
		Timestamp:     r.now(),
		Status:        model.StatusConnected,
	}

	if v, err := readUintFile(filepath.Join(path, "bcdDevice"), 16, 16); err == nil {
		dev.DeviceVersion = uint16(v)
	}
	if v, err := readUintFile(filepath.Join(path, "bDeviceClass"), 16, 8); err == nil {
		dev.DeviceClass = uint8(v)
	}
	if v, err := readUintFile(filepath.Join(path, "bDeviceSubClass"), 16, 8); err == nil {
		dev.DeviceSubclass = uint8(v)
	}
	if v, err := readUintFile(filepath.Join(path, "bDeviceProtocol"), 16, 8); err == nil {
		dev.DeviceProtocol = uint8(v)
	}
	if v, err := readUintFile(filepath.Join(path, "bMaxPacketSize0"), 10, 8); err == nil {
		dev.MaxPacketSize = uint8(v)
	}
	if v, err := readUintFile(filepath.Join(path, "bNumConfigurations"), 10, 8); err == nil {
		dev.NumConfigs = uint8(v)
	}

	// String descriptors are absent for many devices and unreadable
	// without permissions for others; either way the device stays in
	// the snapshot with nil strings.
	dev.Manufacturer = readStringFile(filepath.Join(path, "manufacturer"))
	dev.Product = readStringFile(filepath.Join(path, "product"))
	dev.SerialNumber = readStringFile(filepath.Join(path, "serial"))

	return dev, nil
}

func readUintFile(path string, base int, bits int) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), base, bits)
}

func readStringFile(path string) *string {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return nil
	}
	return &s
}

func classifyDirError(path string, err error) error {
	switch {
	case os.IsPermission(err):
		return &BusError{Kind: KindAccessDenied, Path: path, Err: err}
	case os.IsNotExist(err):
		return &BusError{Kind: KindUnavailable, Path: path, Err: err}
	default:
		return &BusError{Kind: KindReadFailed, Path: path, Err: err}
	}
}

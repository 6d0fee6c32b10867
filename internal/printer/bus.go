package printer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DeviceInfo describes one device found during bus enumeration.
type DeviceInfo struct {
	// Identifier in usb://0xVVVV:0xPPPP form, stable across replug only if
	// the kernel re-enumerates the device at the same address.
	Identifier string
	// Path is the character device jobs are written to, e.g. /dev/usb/lp0.
	Path string
}

// Bus abstracts the physical transport under the label adapter: enumerate
// reachable devices, push raw bytes to one of them. Tests substitute a fake.
type Bus interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Send(ctx context.Context, identifier string, data []byte) error
}

const (
	sysfsUSBRoot = "/sys/bus/usb/devices"
	devUSBRoot   = "/dev/usb"
)

// USBLPBus enumerates printers exposed through the Linux usblp driver and
// writes jobs straight to their character devices.
type USBLPBus struct {
	// SysfsRoot and DevRoot exist so tests can point the bus at a fixture
	// tree. Zero values mean the real kernel paths.
	SysfsRoot string
	DevRoot   string
}

func (b *USBLPBus) sysfsRoot() string {
	if b.SysfsRoot != "" {
		return b.SysfsRoot
	}
	return sysfsUSBRoot
}

func (b *USBLPBus) devRoot() string {
	if b.DevRoot != "" {
		return b.DevRoot
	}
	return devUSBRoot
}

func (b *USBLPBus) Enumerate(_ context.Context) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(b.sysfsRoot())
	if err != nil {
		return nil, fmt.Errorf("usb enumeration failed: %w", err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		dir := filepath.Join(b.sysfsRoot(), entry.Name())

		vendor, err := readSysfsValue(filepath.Join(dir, "idVendor"))
		if err != nil {
			continue // interface nodes have no vendor id
		}
		product, err := readSysfsValue(filepath.Join(dir, "idProduct"))
		if err != nil {
			continue
		}

		lp, ok := findUSBLPNode(dir)
		if !ok {
			continue // not bound to usblp, not a printer we can drive
		}

		devices = append(devices, DeviceInfo{
			Identifier: fmt.Sprintf("usb://0x%s:0x%s", vendor, product),
			Path:       filepath.Join(b.devRoot(), lp),
		})
	}
	return devices, nil
}

func (b *USBLPBus) Send(ctx context.Context, identifier string, data []byte) error {
	devices, err := b.Enumerate(ctx)
	if err != nil {
		return err
	}

	var target *DeviceInfo
	for i := range devices {
		if devices[i].Identifier == identifier {
			target = &devices[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("device not found on bus: %s", identifier)
	}

	f, err := os.OpenFile(target.Path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", target.Path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write to %s failed: %w", target.Path, err)
	}
	return nil
}

func readSysfsValue(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// findUSBLPNode looks for a usblp class device (lp0, lp1, ...) under any
// interface directory of the given sysfs device.
func findUSBLPNode(deviceDir string) (string, bool) {
	interfaces, err := filepath.Glob(filepath.Join(deviceDir, "*:*"))
	if err != nil {
		return "", false
	}
	for _, iface := range interfaces {
		nodes, err := os.ReadDir(filepath.Join(iface, "usbmisc"))
		if err != nil {
			continue
		}
		for _, node := range nodes {
			if strings.HasPrefix(node.Name(), "lp") {
				return node.Name(), true
			}
		}
	}
	return "", false
}

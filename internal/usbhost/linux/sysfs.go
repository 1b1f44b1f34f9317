//go:build linux

package linux

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ardnew/usbpower/internal/topopath"
	"github.com/ardnew/usbpower/internal/usbhost"
)

// usbDeviceInfo is the sysfs-derived view of one attached USB device.
type usbDeviceInfo struct {
	name      string // sysfs directory name, e.g. "1-1.2"
	sysfsPath string
	devfsPath string
	busNum    uint8
	devNum    uint8
	vendorID  uint16
	productID uint16
	class     uint8
}

func (info usbDeviceInfo) toDeviceInfo() (usbhost.DeviceInfo, error) {
	path, err := topopath.Parse(info.name)
	if err != nil {
		return usbhost.DeviceInfo{}, err
	}
	portCount := 0
	if n, err := readSysfsUint(filepath.Join(info.sysfsPath, "maxchild")); err == nil {
		portCount = int(n)
	}

	return usbhost.DeviceInfo{
		Path:      path,
		VendorID:  info.vendorID,
		ProductID: info.productID,
		Class:     info.class,
		PortCount: portCount,
	}, nil
}

// scanUSBDevices enumerates every USB device node under SysfsUSBPath,
// skipping root-hub controller entries ("usbN") and interface entries
// (names containing ":").
func scanUSBDevices() ([]usbDeviceInfo, error) {
	entries, err := os.ReadDir(SysfsUSBPath)
	if err != nil {
		return nil, err
	}

	var devices []usbDeviceInfo
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "usb") {
			continue
		}
		if strings.Contains(name, ":") {
			continue
		}
		info, err := parseUSBDevice(filepath.Join(SysfsUSBPath, name))
		if err != nil {
			continue
		}
		info.name = name
		devices = append(devices, info)
	}
	return devices, nil
}

// parseUSBDevice reads a single device's sysfs attribute files.
func parseUSBDevice(sysfsPath string) (usbDeviceInfo, error) {
	var info usbDeviceInfo
	info.sysfsPath = sysfsPath
	info.name = filepath.Base(sysfsPath)

	busNum, err := readSysfsUint(filepath.Join(sysfsPath, "busnum"))
	if err != nil {
		return usbDeviceInfo{}, err
	}
	info.busNum = uint8(busNum)

	devNum, err := readSysfsUint(filepath.Join(sysfsPath, "devnum"))
	if err != nil {
		return usbDeviceInfo{}, err
	}
	info.devNum = uint8(devNum)
	info.devfsPath = formatDevfsPath(info.busNum, info.devNum)

	if vendorID, err := readSysfsHex(filepath.Join(sysfsPath, "idVendor")); err == nil {
		info.vendorID = uint16(vendorID)
	}
	if productID, err := readSysfsHex(filepath.Join(sysfsPath, "idProduct")); err == nil {
		info.productID = uint16(productID)
	}
	if class, err := readSysfsHex(filepath.Join(sysfsPath, "bDeviceClass")); err == nil {
		info.class = uint8(class)
	}

	return info, nil
}

// parseSysfsDevicePath extracts bus and device numbers from a sysfs
// device directory, used to resolve a netlink hotplug event's devpath.
func parseSysfsDevicePath(path string) (busNum, devNum uint8, ok bool) {
	busNumVal, err := readSysfsUint(filepath.Join(path, "busnum"))
	if err != nil {
		return 0, 0, false
	}
	devNumVal, err := readSysfsUint(filepath.Join(path, "devnum"))
	if err != nil {
		return 0, 0, false
	}
	return uint8(busNumVal), uint8(devNumVal), true
}

// formatDevfsPath constructs a /dev/bus/usb path from bus and device
// numbers, e.g. /dev/bus/usb/001/002.
func formatDevfsPath(busNum, devNum uint8) string {
	return filepath.Join(DevfsUSBPath, formatPadded(busNum), formatPadded(devNum))
}

func formatPadded(val uint8) string {
	s := strconv.FormatUint(uint64(val), 10)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readSysfsUint(path string) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 32)
}

func readSysfsHex(path string) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 16, 32)
}

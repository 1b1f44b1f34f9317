//go:build linux

package linux

import (
	"bytes"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ueventAction represents a udev action.
type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
)

// uevent is a parsed netlink uevent.
type uevent struct {
	action    ueventAction
	devpath   string
	subsystem string
	devtype   string
}

// hotplugMonitor watches the kernel's udev netlink broadcast group for USB
// device arrival and departure.
type hotplugMonitor struct {
	fd       int
	buf      [UEventBufferSize]byte
	addCh    chan usbDeviceInfo
	removeCh chan usbDeviceInfo
}

// newHotplugMonitor opens and binds the netlink socket.
func newHotplugMonitor() (*hotplugMonitor, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		NetlinkKObjectUEvent,
	)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &hotplugMonitor{
		fd:       fd,
		addCh:    make(chan usbDeviceInfo, 16),
		removeCh: make(chan usbDeviceInfo, 16),
	}, nil
}

func (h *hotplugMonitor) close() error {
	return unix.Close(h.fd)
}

func (h *hotplugMonitor) socketFD() int {
	return h.fd
}

// processEvent reads and dispatches one pending uevent, if any.
func (h *hotplugMonitor) processEvent() (bool, error) {
	n, err := unix.Read(h.fd, h.buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, err
	}
	if n <= 0 {
		return false, nil
	}

	evt := parseUEvent(h.buf[:n])
	if evt.subsystem != "usb" || evt.devtype != "usb_device" {
		return true, nil
	}

	name := filepath.Base(evt.devpath)
	sysfsPath := filepath.Join(SysfsUSBPath, name)

	switch evt.action {
	case ueventAdd:
		if info, err := parseUSBDevice(sysfsPath); err == nil {
			select {
			case h.addCh <- info:
			default:
			}
		}
	case ueventRemove:
		info := usbDeviceInfo{name: name, sysfsPath: sysfsPath}
		if busNum, devNum, ok := parseSysfsDevicePath(sysfsPath); ok {
			info.busNum = busNum
			info.devNum = devNum
		}
		select {
		case h.removeCh <- info:
		default:
		}
	}

	return true, nil
}

// parseUEvent parses a netlink uevent message into key/value pairs.
func parseUEvent(data []byte) uevent {
	var evt uevent

	for _, line := range bytes.Split(data, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)

		idx := strings.IndexByte(s, '=')
		if idx < 0 {
			switch {
			case strings.HasPrefix(s, "add@"):
				evt.action = ueventAdd
				evt.devpath = s[4:]
			case strings.HasPrefix(s, "remove@"):
				evt.action = ueventRemove
				evt.devpath = s[7:]
			}
			continue
		}

		key, value := s[:idx], s[idx+1:]
		switch key {
		case "ACTION":
			switch value {
			case "add":
				evt.action = ueventAdd
			case "remove":
				evt.action = ueventRemove
			}
		case "DEVPATH":
			evt.devpath = value
		case "SUBSYSTEM":
			evt.subsystem = value
		case "DEVTYPE":
			evt.devtype = value
		}
	}

	return evt
}

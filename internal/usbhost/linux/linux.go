//go:build linux && arm

package linux

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/usbpower/internal/usbhost"
	"github.com/ardnew/usbpower/pkg"
)

// defaultControlTimeout is the USBDEVFS_CONTROL timeout, in milliseconds,
// applied to every liveness probe and hub command.
const defaultControlTimeout = 1000

// deviceConn is an open usbfs device node plus its last-known sysfs
// descriptor.
type deviceConn struct {
	fd   int
	info usbDeviceInfo
}

// Source implements usbhost.Source on Linux via netlink hotplug, sysfs
// descriptors, and usbfs control-transfer ioctls.
type Source struct {
	hotplug *hotplugMonitor
	poller  *poller
	devices map[usbhost.Handle]*deviceConn
}

// NewSource opens the netlink hotplug socket and epoll instance backing
// this event source.
func NewSource() (*Source, error) {
	hotplug, err := newHotplugMonitor()
	if err != nil {
		return nil, fmt.Errorf("usbhost/linux: hotplug monitor: %w", err)
	}

	p, err := newPoller()
	if err != nil {
		hotplug.close()
		return nil, fmt.Errorf("usbhost/linux: poller: %w", err)
	}
	if err := p.addFD(hotplug.socketFD()); err != nil {
		hotplug.close()
		p.close()
		return nil, fmt.Errorf("usbhost/linux: watching hotplug socket: %w", err)
	}

	return &Source{
		hotplug: hotplug,
		poller:  p,
		devices: make(map[usbhost.Handle]*deviceConn),
	}, nil
}

// Close releases the hotplug socket, poller, and every open device fd.
func (s *Source) Close() error {
	for h, conn := range s.devices {
		closeDevice(conn.fd)
		delete(s.devices, h)
	}
	s.poller.close()
	return s.hotplug.close()
}

// Poll waits up to timeout for hotplug events.
func (s *Source) Poll(ctx context.Context, timeout time.Duration) ([]usbhost.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	millis := int(timeout / time.Millisecond)
	ready, err := s.poller.pollOnce(millis)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, nil
	}

	for _, fd := range ready {
		if fd != s.hotplug.socketFD() {
			continue
		}
		for {
			processed, err := s.hotplug.processEvent()
			if err != nil {
				pkg.LogWarn(pkg.ComponentHAL, "hotplug read failed", "error", err)
				break
			}
			if !processed {
				break
			}
		}
	}

	var events []usbhost.Event
	for {
		select {
		case info := <-s.hotplug.addCh:
			events = append(events, s.onArrive(info))
			continue
		default:
		}
		break
	}
	for {
		select {
		case info := <-s.hotplug.removeCh:
			events = append(events, s.onDepart(info))
			continue
		default:
		}
		break
	}

	return events, nil
}

func (s *Source) onArrive(info usbDeviceInfo) usbhost.Event {
	handle := usbhost.Handle(info.name)

	if conn, ok := s.devices[handle]; ok {
		closeDevice(conn.fd)
	}

	fd, err := openDevice(info.devfsPath)
	if err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "opening usbfs device failed",
			"path", info.devfsPath, "error", err)
	}
	s.devices[handle] = &deviceConn{fd: fd, info: info}

	return usbhost.Event{Kind: usbhost.Arrived, Handle: handle}
}

func (s *Source) onDepart(info usbDeviceInfo) usbhost.Event {
	handle := usbhost.Handle(info.name)
	if conn, ok := s.devices[handle]; ok {
		closeDevice(conn.fd)
		delete(s.devices, handle)
	}
	return usbhost.Event{Kind: usbhost.Left, Handle: handle}
}

// DeviceInfo resolves a handle to its cached sysfs descriptor.
func (s *Source) DeviceInfo(h usbhost.Handle) (usbhost.DeviceInfo, error) {
	conn, ok := s.devices[h]
	if !ok {
		return usbhost.DeviceInfo{}, pkg.ErrNoDevice
	}
	return conn.info.toDeviceInfo()
}

// ControlTransfer issues a synchronous USBDEVFS_CONTROL transfer.
func (s *Source) ControlTransfer(ctx context.Context, h usbhost.Handle, setup usbhost.SetupPacket, data []byte) (int, error) {
	conn, ok := s.devices[h]
	if !ok {
		return 0, pkg.ErrNoDevice
	}

	n, err := doControlTransfer(conn.fd, setup.RequestType, setup.Request, setup.Value, setup.Index, data, defaultControlTimeout)
	if isNoDevice(err) {
		delete(s.devices, h)
		return 0, pkg.ErrNoDevice
	}
	return n, err
}

// ListDevices rescans sysfs for the current device list, registering any
// device the hotplug path has lost track of, and returns every known
// handle.
func (s *Source) ListDevices() ([]usbhost.Handle, error) {
	found, err := scanUSBDevices()
	if err != nil {
		return nil, err
	}

	seen := make(map[usbhost.Handle]bool, len(found))
	for _, info := range found {
		handle := usbhost.Handle(info.name)
		seen[handle] = true
		if _, ok := s.devices[handle]; ok {
			continue
		}
		fd, err := openDevice(info.devfsPath)
		if err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "opening usbfs device failed",
				"path", info.devfsPath, "error", err)
			continue
		}
		s.devices[handle] = &deviceConn{fd: fd, info: info}
	}

	out := make([]usbhost.Handle, 0, len(s.devices))
	for h := range s.devices {
		out = append(out, h)
	}
	return out, nil
}

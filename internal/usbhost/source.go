package usbhost

import (
	"context"
	"time"

	"github.com/ardnew/usbpower/internal/topopath"
)

// Handle is an opaque identifier for a USB device node, stable for the
// lifetime of that device's attachment.
type Handle string

// EventKind names a hotplug event delivered by a Source.
type EventKind int

// Recognized event kinds.
const (
	Arrived EventKind = iota
	Left
)

// String renders the event kind for logging.
func (k EventKind) String() string {
	if k == Arrived {
		return "arrived"
	}
	return "left"
}

// Event is a single hotplug arrival or departure.
type Event struct {
	Kind   EventKind
	Handle Handle
}

// DeviceInfo is the subset of a USB device's standard descriptor this
// supervisor needs: enough to recognize switching hubs and to resolve a
// topological path.
type DeviceInfo struct {
	Path      topopath.Path
	VendorID  uint16
	ProductID uint16
	// Class is the USB device class code. A hub reports class 0x09.
	Class uint8
	// PortCount is the number of downstream ports, meaningful only when
	// Class == USBClassHub. Zero means unknown.
	PortCount int
}

// USBClassHub is the standard USB device class code for hubs.
const USBClassHub = 0x09

// SetupPacket mirrors the eight-byte USB control transfer setup stage.
// Field names and sizes follow the standard USB setup packet layout.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Standard control request codes used by this supervisor.
const (
	RequestGetStatus = 0x00
)

// ProbeSetup builds the standard GET_STATUS request issued to endpoint
// zero as a liveness probe.
func ProbeSetup() SetupPacket {
	return SetupPacket{
		RequestType: 0x80, // device-to-host, standard, device recipient
		Request:     RequestGetStatus,
		Value:       0,
		Index:       0,
		Length:      2,
	}
}

// Source wraps the host USB library: hotplug delivery, descriptor lookup,
// and synchronous control transfers. It is consulted only from the event
// loop goroutine; implementations must not mutate shared state from any
// other goroutine (see the concurrency model this system follows).
type Source interface {
	// Poll waits up to timeout for hotplug events and returns every event
	// observed. A zero-length, nil-error result means the wait elapsed
	// with nothing to report.
	Poll(ctx context.Context, timeout time.Duration) ([]Event, error)

	// DeviceInfo resolves a handle to its descriptor and topological path.
	// It returns an error if the handle no longer refers to a present
	// device.
	DeviceInfo(h Handle) (DeviceInfo, error)

	// ControlTransfer issues a synchronous control transfer to the device
	// named by h.
	ControlTransfer(ctx context.Context, h Handle, setup SetupPacket, data []byte) (int, error)

	// ListDevices enumerates every USB device currently attached, for the
	// periodic full-device sweep (see the event loop's 30-second rescan).
	ListDevices() ([]Handle, error)
}

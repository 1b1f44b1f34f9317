package topology

import (
	"time"

	"github.com/ardnew/usbpower/internal/topopath"
)

// ConnStatus is the connection status of a port.
type ConnStatus int

// Connection status values.
const (
	NoDev ConnStatus = iota
	DevConnected
)

// String renders the connection status for logging.
func (s ConnStatus) String() string {
	if s == DevConnected {
		return "connected"
	}
	return "no_dev"
}

// PowerState is the assumed power state of a port. The hardware does not
// always report truth; the state machine corrects drift rather than
// trusting a readback.
type PowerState int

// Power states.
const (
	PowerOff PowerState = iota
	PowerOn
)

// String renders the power state for logging.
func (s PowerState) String() string {
	if s == PowerOn {
		return "on"
	}
	return "off"
}

// Mode is the port's current supervision stage.
type Mode int

// Supervision modes.
const (
	ModeIdle Mode = iota
	ModePing
	ModeReset
)

// String renders the mode for logging.
func (m Mode) String() string {
	switch m {
	case ModePing:
		return "ping"
	case ModeReset:
		return "reset"
	default:
		return "idle"
	}
}

// DefaultTimeout is the steady-state probe interval (before the grace
// window is added for a freshly-arrived device). A failed ping is retried
// immediately, not after this interval.
const DefaultTimeout = 5 * time.Second

// ArrivalGrace is added to DefaultTimeout for a port's first post-arrival
// deadline, to allow mode-switching tools time to finish re-enumeration.
const ArrivalGrace = 5 * time.Second

// RetransLimit is the number of failed probes tolerated before a port is
// reset.
const RetransLimit = 5

// PingLogThrottle is the number of successful pings between log lines.
const PingLogThrottle = 20

// PowerOffHold is how long a port stays powered off during a reset before
// power is restored.
const PowerOffHold = 1 * time.Second

// Port represents one supervised downstream position on some hub. It is
// created when its parent hub is discovered and destroyed only when that
// hub departs; device bindings come and go independently of the port's own
// lifetime.
type Port struct {
	// HubHandle is a weak, non-owning reference to the parent hub: the
	// hub's DeviceHandle, re-resolved against the registry on each use so
	// the port never keeps the hub alive.
	HubHandle string

	// Path is this port's topological address.
	Path topopath.Path

	// DeviceHandle is the handle of the currently attached device, or ""
	// if none is attached.
	DeviceHandle string

	VendorID  uint16
	ProductID uint16

	Status ConnStatus
	Power  PowerState
	Mode   Mode

	RetransCount     int
	PingSuccessCount int

	// Deadline is the absolute time of this port's next timer action. It
	// is meaningful only while the port is enrolled in the registry's
	// timeout collection.
	Deadline time.Time

	// deviceRefHeld mirrors "while message_mode != IDLE, the port holds a
	// reference count on its attached device". It is reported by
	// HasDeviceRef; Unbind clears it without consulting it.
	deviceRefHeld bool

	// ProbePayload is a buffer for a pre-formatted probe payload. Nothing in
	// this module sets or reads it: each PING fire builds its GET_STATUS
	// request with usbhost.ProbeSetup.
	ProbePayload []byte
}

// NewPort creates an idle, unbound port at the given path on the named hub.
func NewPort(hubHandle string, path topopath.Path) *Port {
	return &Port{
		HubHandle: hubHandle,
		Path:      path,
		Status:    NoDev,
		Power:     PowerOn,
		Mode:      ModeIdle,
	}
}

// PortIndex returns the port number on the parent hub, i.e. the last
// segment of the topological path.
func (p *Port) PortIndex() uint8 {
	return p.Path.Port()
}

// Bind attaches a device to this port, maintaining the invariant that
// device_handle is empty iff status is NO_DEV. It is a no-op if the port is
// already bound to this exact device handle, which de-duplicates a repeated
// arrival for the same device.
func (p *Port) Bind(deviceHandle string, vendorID, productID uint16) (bound bool) {
	if p.DeviceHandle == deviceHandle && deviceHandle != "" {
		return false
	}
	p.DeviceHandle = deviceHandle
	p.VendorID = vendorID
	p.ProductID = productID
	p.Status = DevConnected
	return true
}

// Unbind clears the device binding, returning the port to NO_DEV/IDLE. This
// is used both for normal departure and for abandoning a mid-PING/mid-RESET
// transfer whose device just left.
func (p *Port) Unbind() {
	p.DeviceHandle = ""
	p.Status = NoDev
	p.Mode = ModeIdle
	p.RetransCount = 0
	p.deviceRefHeld = false
}

// TakeDeviceRef records that the port holds a reference on its attached
// device for the duration of probing or reset.
func (p *Port) TakeDeviceRef() {
	p.deviceRefHeld = p.DeviceHandle != ""
}

// DropDeviceRef releases the reference taken by TakeDeviceRef.
func (p *Port) DropDeviceRef() {
	p.deviceRefHeld = false
}

// HasDeviceRef reports whether the port currently holds a reference on its
// attached device.
func (p *Port) HasDeviceRef() bool {
	return p.deviceRefHeld
}

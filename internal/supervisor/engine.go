package supervisor

import (
	"context"
	"time"

	"github.com/ardnew/usbpower/internal/backend"
	"github.com/ardnew/usbpower/internal/topology"
	"github.com/ardnew/usbpower/internal/usbhost"
	"github.com/ardnew/usbpower/pkg"
)

// DeviceSweepInterval is the full-device-sweep cadence.
const DeviceSweepInterval = 30 * time.Second

// RestartSweepInterval is the wedged-port restart cadence.
const RestartSweepInterval = 60 * time.Second

// DefaultHubPortCount is used when a newly-onboarded hub's downstream port
// count cannot be determined from its descriptor (e.g. a fake source in
// tests, or a malformed sysfs maxchild attribute).
const DefaultHubPortCount = 4

// Engine owns the topology registry and drives the port supervision state
// machine from a single cooperative loop; see Tick.
type Engine struct {
	Registry *topology.Registry
	Source   usbhost.Source
	Backends map[topology.BackendKind]backend.Switcher

	forceReset chan struct{}

	// Annotate, if set, resolves a vendor/product ID pair to human-readable
	// names for arrival log lines. It is optional: callers without a USB ID
	// database leave it nil and get the bare numeric IDs.
	Annotate func(vendorID, productID uint16) (vendor, product string)

	clock func() time.Time

	lastDeviceSweep  time.Time
	lastRestartSweep time.Time
}

// NewEngine constructs an engine around reg and src, dispatching resets to
// the given per-backend switchers. The periodic sweep timestamps are left
// at their zero value rather than seeded to the construction time, so the
// first Tick treats both sweeps as overdue and immediately reconciles any
// device already attached before the daemon started.
func NewEngine(reg *topology.Registry, src usbhost.Source, backends map[topology.BackendKind]backend.Switcher) *Engine {
	return &Engine{
		Registry:   reg,
		Source:     src,
		Backends:   backends,
		forceReset: make(chan struct{}, 1),
		clock:      time.Now,
	}
}

// RequestForceReset enqueues a forced reset sweep, to be drained on the
// next Tick. It never blocks: a pending request that hasn't been drained
// yet is left as-is. A signal handler calls this from outside the loop
// goroutine; the loop itself only ever reads forceReset from Tick.
func (e *Engine) RequestForceReset() {
	select {
	case e.forceReset <- struct{}{}:
	default:
	}
}

// AddStaticGPIOPorts registers one port per configured GPIO mapping under
// a synthetic host-GPIO hub. Unlike a YKUSH hub, a GPIO-backed port has no
// USB hub device to onboard from hotplug arrival: the mapping is entirely
// external configuration, so the ports it names exist from startup.
func (e *Engine) AddStaticGPIOPorts(portMap map[string]int) error {
	if len(portMap) == 0 {
		return nil
	}

	const gpioHubHandle = "gpio"
	hub := &topology.Hub{
		DeviceHandle: gpioHubHandle,
		PortCount:    len(portMap),
		Backend:      topology.BackendGPIO,
	}
	e.Registry.AddHub(hub)

	for pathStr := range portMap {
		path, err := parsePath(pathStr)
		if err != nil {
			return err
		}
		e.Registry.AddPort(topology.NewPort(gpioHubHandle, path))
	}
	return nil
}

func (e *Engine) switcherFor(hub *topology.Hub) backend.Switcher {
	return e.Backends[hub.Backend]
}

// onArrive handles a single ARRIVED event.
func (e *Engine) onArrive(ctx context.Context, h usbhost.Handle) {
	info, err := e.Source.DeviceInfo(h)
	if err != nil {
		return
	}

	if info.VendorID == backend.YKUSHVendorID && info.ProductID == backend.YKUSHProductID {
		e.onboardHub(ctx, h, info)
		return
	}

	if info.Class == usbhost.USBClassHub {
		pkg.LogInfo(pkg.ComponentSupervisor, "nested hub ignored", "path", info.Path.String())
		return
	}

	port, ok := e.Registry.FindPortByPath(info.Path)
	if !ok {
		// Unknown-path arrival: silently ignored; the periodic device sweep
		// corrects drift if this was a missed topology update.
		return
	}

	if !port.Bind(string(h), info.VendorID, info.ProductID) {
		// Already bound to this exact device: a duplicate arrival, most
		// often from the periodic full-device sweep re-synthesizing one.
		return
	}

	port.Mode = topology.ModePing
	port.TakeDeviceRef()
	port.Deadline = e.clock().Add(topology.DefaultTimeout + topology.ArrivalGrace)
	e.Registry.AddTimeout(port)

	args := []any{"port", port.Path.String(), "vendor", info.VendorID, "product", info.ProductID}
	if e.Annotate != nil {
		vendorName, productName := e.Annotate(info.VendorID, info.ProductID)
		if vendorName != "" {
			args = append(args, "vendor_name", vendorName)
		}
		if productName != "" {
			args = append(args, "product_name", productName)
		}
	}
	pkg.LogInfo(pkg.ComponentSupervisor, "device arrived", args...)
}

// onDepart handles a single LEFT event.
func (e *Engine) onDepart(h usbhost.Handle) {
	for _, p := range e.Registry.Ports() {
		if p.DeviceHandle != string(h) {
			continue
		}
		e.Registry.RemoveTimeout(p)
		p.Unbind()
		pkg.LogInfo(pkg.ComponentSupervisor, "device departed", "port", p.Path.String())
		return
	}
}

// onboardHub registers a newly-discovered YKUSH hub and creates one port
// per downstream position, then synthesizes an ARRIVED call for every
// currently-attached device: children of a just-discovered hub may already
// have generated (and lost) their own arrival events.
func (e *Engine) onboardHub(ctx context.Context, h usbhost.Handle, info usbhost.DeviceInfo) {
	hubHandle := string(h)
	if _, ok := e.Registry.FindHub(hubHandle); ok {
		return
	}

	portCount := info.PortCount
	if portCount == 0 {
		portCount = DefaultHubPortCount
	}

	hub := &topology.Hub{DeviceHandle: hubHandle, PortCount: portCount, Backend: topology.BackendYKUSH}
	e.Registry.AddHub(hub)

	for i := 1; i <= portCount; i++ {
		childPath, ok := info.Path.Child(uint8(i))
		if !ok {
			break
		}
		e.Registry.AddPort(topology.NewPort(hubHandle, childPath))
	}

	pkg.LogInfo(pkg.ComponentSupervisor, "ykush hub onboarded", "hub", hubHandle, "ports", portCount)

	handles, err := e.Source.ListDevices()
	if err != nil {
		pkg.LogWarn(pkg.ComponentSupervisor, "manual re-enumeration failed", "error", err)
		return
	}
	for _, dh := range handles {
		e.onArrive(ctx, dh)
	}
}

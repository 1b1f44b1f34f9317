package supervisor

import (
	"context"
	"time"

	"github.com/ardnew/usbpower/internal/topopath"
	"github.com/ardnew/usbpower/internal/topology"
	"github.com/ardnew/usbpower/internal/usbhost"
	"github.com/ardnew/usbpower/pkg"
)

func parsePath(s string) (topopath.Path, error) {
	return topopath.Parse(s)
}

// Tick runs one iteration of the event loop: it first drains a pending
// forced-reset request, then runs hotplug dispatch, the timeout scan, and
// the periodic sweeps, strictly in that order. It blocks for at most one
// second waiting for hotplug events.
func (e *Engine) Tick(ctx context.Context) error {
	select {
	case <-e.forceReset:
		e.ForceResetAll(ctx)
	default:
	}

	events, err := e.Source.Poll(ctx, time.Second)
	if err != nil {
		return err
	}
	for _, ev := range events {
		switch ev.Kind {
		case usbhost.Arrived:
			e.onArrive(ctx, ev.Handle)
		case usbhost.Left:
			e.onDepart(ev.Handle)
		}
	}

	e.scanTimeouts(ctx)

	now := e.clock()
	ranDeviceSweep := false
	if now.Sub(e.lastDeviceSweep) >= DeviceSweepInterval {
		e.deviceSweep(ctx)
		e.lastDeviceSweep = now
		ranDeviceSweep = true
	}
	// The restart sweep is skipped on a tick that already ran the device
	// sweep, so the two periodic sweeps never stack their work onto the
	// same tick.
	if !ranDeviceSweep && now.Sub(e.lastRestartSweep) >= RestartSweepInterval {
		e.restartSweep(ctx)
		e.lastRestartSweep = now
	}

	return nil
}

// scanTimeouts walks the timeout collection once, detaching each port
// before invoking its handler so a handler that re-enrolls the port (e.g.
// scheduling the next probe) does not retrigger within this same scan.
func (e *Engine) scanTimeouts(ctx context.Context) {
	now := e.clock()
	for _, p := range e.Registry.Timeouts() {
		if now.Before(p.Deadline) {
			continue
		}
		e.Registry.RemoveTimeout(p)
		e.fireTimeout(ctx, p)
	}
}

// fireTimeout dispatches a fired deadline based on the port's current mode.
// A port already moved to RESET by the time its PING deadline is scanned
// only ever reaches this through the RESET branch below, since dispatch is
// keyed on live state rather than on which probe the deadline belonged to:
// a stale PING result has nothing left to land on.
func (e *Engine) fireTimeout(ctx context.Context, p *topology.Port) {
	switch p.Mode {
	case topology.ModePing:
		e.firePing(ctx, p)
	case topology.ModeReset:
		e.fireResetComplete(ctx, p)
	default:
		// An IDLE deadline has no action. The restart sweep walks every
		// port directly, so this package never enrolls IDLE ports for it;
		// a fire in this mode is a no-op.
	}
}

// firePing issues a GET_STATUS probe and advances the port on the result.
func (e *Engine) firePing(ctx context.Context, p *topology.Port) {
	if p.DeviceHandle == "" {
		p.Mode = topology.ModeIdle
		return
	}

	hub, ok := e.Registry.FindHub(p.HubHandle)
	if !ok {
		p.Unbind()
		return
	}

	_, err := e.Source.ControlTransfer(ctx, usbhost.Handle(p.DeviceHandle), usbhost.ProbeSetup(), make([]byte, 2))
	if p.Mode != topology.ModePing {
		// The device departed (or the port was force-reset) while this
		// transfer was outstanding; the result is discarded.
		return
	}

	if err == nil {
		p.RetransCount = 0
		p.PingSuccessCount++
		if p.PingSuccessCount%topology.PingLogThrottle == 0 {
			pkg.LogInfo(pkg.ComponentSupervisor, "probe succeeded",
				"port", p.Path.String(), "count", p.PingSuccessCount)
		}
		p.Deadline = e.clock().Add(topology.DefaultTimeout)
		e.Registry.AddTimeout(p)
		return
	}

	p.RetransCount++
	if p.RetransCount < topology.RetransLimit {
		p.Deadline = e.clock()
		e.Registry.AddTimeout(p)
		return
	}

	e.enterReset(ctx, hub, p)
}

// enterReset drops the device reference, commands power off, and arms the
// hold timer before restoring power.
func (e *Engine) enterReset(ctx context.Context, hub *topology.Hub, p *topology.Port) {
	p.Mode = topology.ModeReset
	p.DropDeviceRef()

	sw := e.switcherFor(hub)
	if sw != nil {
		if err := sw.PowerOffPort(ctx, hub, p); err != nil {
			// Backend error (logged by the switcher): the port still
			// enters RESET and the armed timer only restores power after
			// the hold; the power-off is not retried.
		}
	}
	p.Power = topology.PowerOff

	p.Deadline = e.clock().Add(topology.PowerOffHold)
	e.Registry.AddTimeout(p)

	pkg.LogInfo(pkg.ComponentSupervisor, "port reset", "port", p.Path.String())
}

// fireResetComplete restores power after the hold interval and returns the
// port to IDLE.
func (e *Engine) fireResetComplete(ctx context.Context, p *topology.Port) {
	hub, ok := e.Registry.FindHub(p.HubHandle)
	if !ok {
		return
	}

	sw := e.switcherFor(hub)
	if sw != nil {
		if err := sw.PowerOnPort(ctx, hub, p); err != nil {
			// Backend error: leave the port in RESET and re-enroll it with
			// its already-elapsed deadline, so power-on is tried again on
			// the next tick; there is no retry budget here.
			e.Registry.AddTimeout(p)
			return
		}
	}
	p.Power = topology.PowerOn
	p.Mode = topology.ModeIdle
	p.RetransCount = 0
}

// ForceResetAll drives every port into RESET regardless of its current
// state or binding, except a port already in RESET, which is left untouched.
// Each port's status line is logged as it is swept, giving an operator a
// live topology dump as a side effect of triggering the sweep.
func (e *Engine) ForceResetAll(ctx context.Context) {
	for _, p := range e.Registry.Ports() {
		hub, ok := e.Registry.FindHub(p.HubHandle)
		if !ok {
			continue
		}
		if sw := e.switcherFor(hub); sw != nil {
			pkg.LogInfo(pkg.ComponentSupervisor, "port status", "line", sw.PrintState(hub, p))
		}
		if p.Mode == topology.ModeReset {
			continue
		}
		e.Registry.RemoveTimeout(p)
		e.enterReset(ctx, hub, p)
	}
	pkg.LogInfo(pkg.ComponentSupervisor, "forced reset sweep complete")
}

// deviceSweep rediscovers every currently-attached device and synthesizes
// an arrival for any that drifted out of sync with the registry.
func (e *Engine) deviceSweep(ctx context.Context) {
	handles, err := e.Source.ListDevices()
	if err != nil {
		pkg.LogWarn(pkg.ComponentSupervisor, "device sweep failed", "error", err)
		return
	}
	for _, h := range handles {
		e.onArrive(ctx, h)
	}
}

// restartSweep forces every port whose status is NO_DEV, and that is not
// already in RESET, back through a reset cycle.
func (e *Engine) restartSweep(ctx context.Context) {
	for _, p := range e.Registry.Ports() {
		if p.Status != topology.NoDev || p.Mode == topology.ModeReset {
			continue
		}
		hub, ok := e.Registry.FindHub(p.HubHandle)
		if !ok {
			continue
		}
		e.Registry.RemoveTimeout(p)
		e.enterReset(ctx, hub, p)
	}
}

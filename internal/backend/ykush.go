package backend

import (
	"context"
	"fmt"

	"github.com/ardnew/usbpower/internal/topology"
	"github.com/ardnew/usbpower/internal/usbhost"
	"github.com/ardnew/usbpower/pkg"
)

// YKUSH vendor/product identifiers, design constants of the target
// hardware family.
const (
	YKUSHVendorID  uint16 = 0x04d8
	YKUSHProductID uint16 = 0x0042
)

// YKUSH command bits. A port number is OR'd into the low bits of the
// command byte.
const (
	ykushPowerOff = 0x10
	ykushPowerOn  = 0x11
)

// YKUSH drives a YKUSH hub's per-port power switching over a HID control
// transfer issued to the hub device itself.
type YKUSH struct {
	Source usbhost.Source
}

// NewYKUSH returns a switcher that commands hubs through src.
func NewYKUSH(src usbhost.Source) *YKUSH {
	return &YKUSH{Source: src}
}

func (y *YKUSH) command(ctx context.Context, hub *topology.Hub, cmd byte) error {
	setup := usbhost.SetupPacket{
		RequestType: 0x21, // host-to-device, class, interface recipient
		Request:     0x09, // HID SET_REPORT
		Value:       0x0200,
		Index:       0,
		Length:      1,
	}
	_, err := y.Source.ControlTransfer(ctx, usbhost.Handle(hub.DeviceHandle), setup, []byte{cmd})
	return err
}

// PowerOffPort sends power-off command 0x10|port.
func (y *YKUSH) PowerOffPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error {
	cmd := byte(ykushPowerOff | int(port.PortIndex()))
	if err := y.command(ctx, hub, cmd); err != nil {
		pkg.LogError(pkg.ComponentBackend, "ykush power-off failed",
			"hub", hub.DeviceHandle, "port", port.Path.String(), "error", err)
		return err
	}
	return nil
}

// PowerOnPort sends power-on command 0x11|port.
func (y *YKUSH) PowerOnPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error {
	cmd := byte(ykushPowerOn | int(port.PortIndex()))
	if err := y.command(ctx, hub, cmd); err != nil {
		pkg.LogError(pkg.ComponentBackend, "ykush power-on failed",
			"hub", hub.DeviceHandle, "port", port.Path.String(), "error", err)
		return err
	}
	return nil
}

// PrintState renders a human-readable status line for the port.
func (y *YKUSH) PrintState(hub *topology.Hub, port *topology.Port) string {
	return fmt.Sprintf("ykush hub=%s port=%s mode=%s power=%s status=%s",
		hub.DeviceHandle, port.Path.String(), port.Mode, port.Power, port.Status)
}

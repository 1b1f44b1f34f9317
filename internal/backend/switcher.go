package backend

import (
	"context"

	"github.com/ardnew/usbpower/internal/topology"
)

// Switcher is the per-hub capability set the port supervisor drives during
// a reset. It replaces the function-pointer vtable the original design
// synthesized per port.
type Switcher interface {
	// PowerOffPort cuts power to the given port of hub.
	PowerOffPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error

	// PowerOnPort restores power to the given port of hub.
	PowerOnPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error

	// PrintState returns one line of human-readable status for the port.
	PrintState(hub *topology.Hub, port *topology.Port) string
}

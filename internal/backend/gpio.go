package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardnew/usbpower/internal/topology"
	"github.com/ardnew/usbpower/pkg"
)

// DefaultGPIOBasePath is the default sysfs GPIO class directory.
const DefaultGPIOBasePath = "/sys/class/gpio"

// GPIOWriter is the bit-level transport to a host GPIO line: writing the
// ASCII value that cuts or restores power. This is the external
// collaborator named in the purpose/scope section; GPIO only drives it
// through this narrow interface.
type GPIOWriter interface {
	WriteValue(line int, high bool) error
}

// sysfsGPIOWriter writes to a kernel sysfs GPIO value file.
type sysfsGPIOWriter struct {
	basePath string
}

func (w sysfsGPIOWriter) WriteValue(line int, high bool) error {
	path := filepath.Join(w.basePath, fmt.Sprintf("gpio%d", line), "value")
	value := []byte("0")
	if high {
		value = []byte("1")
	}
	return os.WriteFile(path, value, 0o644)
}

// GPIO drives power switching by writing "0"/"1" to a pre-configured
// sysfs GPIO value file, one exported line per switched port.
type GPIO struct {
	// PortMap maps a port's topological path string to its GPIO line
	// number, as supplied by external configuration.
	PortMap map[string]int

	Writer GPIOWriter
}

// NewGPIO returns a GPIO switcher using the default sysfs writer.
func NewGPIO(portMap map[string]int) *GPIO {
	return &GPIO{
		PortMap: portMap,
		Writer:  sysfsGPIOWriter{basePath: DefaultGPIOBasePath},
	}
}

func (g *GPIO) line(port *topology.Port) (int, error) {
	line, ok := g.PortMap[port.Path.String()]
	if !ok {
		return 0, fmt.Errorf("backend: %w: no GPIO line configured for port %s", pkg.ErrUnknownPort, port.Path.String())
	}
	return line, nil
}

// PowerOffPort writes "0" to the port's GPIO value file.
func (g *GPIO) PowerOffPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error {
	line, err := g.line(port)
	if err != nil {
		return err
	}
	if err := g.Writer.WriteValue(line, false); err != nil {
		pkg.LogError(pkg.ComponentBackend, "gpio power-off failed",
			"port", port.Path.String(), "line", line, "error", err)
		return err
	}
	return nil
}

// PowerOnPort writes "1" to the port's GPIO value file.
func (g *GPIO) PowerOnPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error {
	line, err := g.line(port)
	if err != nil {
		return err
	}
	if err := g.Writer.WriteValue(line, true); err != nil {
		pkg.LogError(pkg.ComponentBackend, "gpio power-on failed",
			"port", port.Path.String(), "line", line, "error", err)
		return err
	}
	return nil
}

// PrintState renders a human-readable status line for the port.
func (g *GPIO) PrintState(hub *topology.Hub, port *topology.Port) string {
	line := g.PortMap[port.Path.String()]
	return fmt.Sprintf("gpio line=%d port=%s mode=%s power=%s status=%s",
		line, port.Path.String(), port.Mode, port.Power, port.Status)
}

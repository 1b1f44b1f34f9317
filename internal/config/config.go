package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/usbpower/pkg"
)

// HandlerGPIO names a GPIO handler block, the only handler whose ports
// payload is used.
const HandlerGPIO = "GPIO"

// HandlerYKUSH names a YKUSH handler block. YKUSH hubs are discovered from
// hub arrival rather than configured, so a YKUSH block carries no ports
// payload; naming it is still accepted so future per-hub overrides have
// somewhere to live without a schema change.
const HandlerYKUSH = "YKUSH"

// Handler is one element of the "handlers" sequence: a backend name and
// its handler-specific payload.
type Handler struct {
	Name  string         `yaml:"name"`
	Ports map[string]int `yaml:"ports"`
}

// Config is the full contents of the configuration file.
type Config struct {
	Handlers []Handler `yaml:"handlers"`
}

// Load reads and validates the configuration file at path. The full file
// is read before parsing; there is no fixed-size read buffer and no
// silent truncation of files larger than any arbitrary limit.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w: %v", path, pkg.ErrConfigInvalid, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentConfig, "configuration loaded", "path", path, "handlers", len(cfg.Handlers))
	return &cfg, nil
}

func (c *Config) validate() error {
	for i, h := range c.Handlers {
		switch h.Name {
		case HandlerGPIO, HandlerYKUSH:
		default:
			return fmt.Errorf("config: handler %d: %w: %q", i, pkg.ErrUnknownHandler, h.Name)
		}
	}
	return nil
}

// GPIOPortMap collects the port-to-GPIO-line mapping from every GPIO
// handler block, in declaration order (later blocks override earlier ones
// on a conflicting path).
func (c *Config) GPIOPortMap() map[string]int {
	out := make(map[string]int)
	for _, h := range c.Handlers {
		if h.Name != HandlerGPIO {
			continue
		}
		for path, line := range h.Ports {
			out[path] = line
		}
	}
	return out
}

package supervisor

import (
	"context"

	"github.com/ardnew/usbpower/internal/topology"
)

// fakeSwitcher records every power command issued against it, in order,
// so tests can assert on command sequencing across a reset cycle.
type fakeSwitcher struct {
	Commands []string
	FailOn   map[string]bool
}

func newFakeSwitcher() *fakeSwitcher {
	return &fakeSwitcher{FailOn: make(map[string]bool)}
}

func (f *fakeSwitcher) PowerOffPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error {
	f.Commands = append(f.Commands, "off:"+port.Path.String())
	if f.FailOn["off"] {
		return errFakeBackend
	}
	return nil
}

func (f *fakeSwitcher) PowerOnPort(ctx context.Context, hub *topology.Hub, port *topology.Port) error {
	f.Commands = append(f.Commands, "on:"+port.Path.String())
	if f.FailOn["on"] {
		return errFakeBackend
	}
	return nil
}

func (f *fakeSwitcher) PrintState(hub *topology.Hub, port *topology.Port) string {
	return "fake"
}

type fakeBackendError string

func (e fakeBackendError) Error() string { return string(e) }

const errFakeBackend = fakeBackendError("supervisor: fake backend error")

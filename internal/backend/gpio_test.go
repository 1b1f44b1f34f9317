package backend

import (
	"context"
	"testing"

	"github.com/ardnew/usbpower/internal/topology"
	"github.com/ardnew/usbpower/internal/topopath"
)

type fakeGPIOWriter struct {
	writes []struct {
		line int
		high bool
	}
}

func (w *fakeGPIOWriter) WriteValue(line int, high bool) error {
	w.writes = append(w.writes, struct {
		line int
		high bool
	}{line, high})
	return nil
}

func TestGPIOPowerCommands(t *testing.T) {
	path, err := topopath.Parse("1-1.3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	port := topology.NewPort("hub-1", path)

	writer := &fakeGPIOWriter{}
	g := &GPIO{PortMap: map[string]int{"1-1.3": 17}, Writer: writer}

	if err := g.PowerOffPort(context.Background(), nil, port); err != nil {
		t.Fatalf("PowerOffPort: %v", err)
	}
	if err := g.PowerOnPort(context.Background(), nil, port); err != nil {
		t.Fatalf("PowerOnPort: %v", err)
	}

	if len(writer.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writer.writes))
	}
	if writer.writes[0].line != 17 || writer.writes[0].high {
		t.Errorf("power-off write = %+v, want line=17 high=false", writer.writes[0])
	}
	if writer.writes[1].line != 17 || !writer.writes[1].high {
		t.Errorf("power-on write = %+v, want line=17 high=true", writer.writes[1])
	}
}

func TestGPIOUnknownPort(t *testing.T) {
	path, _ := topopath.Parse("1-1.9")
	port := topology.NewPort("hub-1", path)
	g := &GPIO{PortMap: map[string]int{}, Writer: &fakeGPIOWriter{}}

	if err := g.PowerOffPort(context.Background(), nil, port); err == nil {
		t.Fatalf("expected error for unmapped port")
	}
}

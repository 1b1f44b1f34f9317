package topology

import "github.com/ardnew/usbpower/internal/topopath"

// Registry holds every known hub and supervised port. It is owned
// exclusively by the event loop; nothing outside the loop goroutine may
// read or mutate it (see the concurrency model this system follows: a
// single cooperative loop, no locking).
type Registry struct {
	hubs     map[string]*Hub
	ports    []*Port
	timeouts map[string]*Port
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		hubs:     make(map[string]*Hub),
		timeouts: make(map[string]*Port),
	}
}

// FindHub looks up a hub by its device handle.
func (r *Registry) FindHub(deviceHandle string) (*Hub, bool) {
	h, ok := r.hubs[deviceHandle]
	return h, ok
}

// AddHub registers a newly-discovered hub.
func (r *Registry) AddHub(h *Hub) {
	r.hubs[h.DeviceHandle] = h
}

// RemoveHub deregisters a hub and removes every port whose parent is this
// hub from both the port collection and the timeout collection.
func (r *Registry) RemoveHub(h *Hub) {
	delete(r.hubs, h.DeviceHandle)

	kept := r.ports[:0]
	for _, p := range r.ports {
		if p.HubHandle == h.DeviceHandle {
			delete(r.timeouts, p.Path.String())
			continue
		}
		kept = append(kept, p)
	}
	r.ports = kept
}

// AddPort registers a new port.
func (r *Registry) AddPort(p *Port) {
	r.ports = append(r.ports, p)
}

// RemovePort deregisters a port, ensuring it is also absent from the
// timeout collection.
func (r *Registry) RemovePort(p *Port) {
	delete(r.timeouts, p.Path.String())
	for i, existing := range r.ports {
		if existing == p {
			r.ports = append(r.ports[:i], r.ports[i+1:]...)
			return
		}
	}
}

// FindPortByPath performs a linear, byte-equal scan for the port at path.
// Population is bounded by the number of physical ports (tens, not
// thousands), so no index is maintained.
func (r *Registry) FindPortByPath(path topopath.Path) (*Port, bool) {
	for _, p := range r.ports {
		if p.Path.Equal(path) {
			return p, true
		}
	}
	return nil, false
}

// Ports returns every registered port. The returned slice references
// internal storage; callers must not retain it across a mutating call.
func (r *Registry) Ports() []*Port {
	return r.ports
}

// Hubs returns every registered hub.
func (r *Registry) Hubs() []*Hub {
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	return hubs
}

// AddTimeout enrolls a port in the timeout collection. It is idempotent:
// enrolling an already-enrolled port is a no-op.
func (r *Registry) AddTimeout(p *Port) {
	r.timeouts[p.Path.String()] = p
}

// RemoveTimeout deenrolls a port from the timeout collection. It is
// idempotent: removing a port that is not enrolled is a no-op.
func (r *Registry) RemoveTimeout(p *Port) {
	delete(r.timeouts, p.Path.String())
}

// InTimeout reports whether a port is currently enrolled in the timeout
// collection.
func (r *Registry) InTimeout(p *Port) bool {
	_, ok := r.timeouts[p.Path.String()]
	return ok
}

// Timeouts returns every port currently enrolled in the timeout collection.
// The event loop scans this linearly each tick; it is never sorted.
func (r *Registry) Timeouts() []*Port {
	out := make([]*Port, 0, len(r.timeouts))
	for _, p := range r.timeouts {
		out = append(out, p)
	}
	return out
}

// Package supervisor implements the per-port supervision state machine and
// the event loop that drives it: USB hotplug dispatch, the timeout scan,
// and the periodic full-device and restart sweeps.
package supervisor

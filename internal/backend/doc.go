// Package backend implements the switching-backend abstraction: the
// capability set {power_off_port, power_on_port, print_state} the port
// supervisor drives during a reset, with two variants whose hardware
// protocols differ completely — YKUSH (HID control transfers to the hub
// itself) and GPIO (sysfs value-file writes on the host).
package backend

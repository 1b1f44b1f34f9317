// Package linux implements usbhost.Source on top of the kernel's netlink
// hotplug broadcast, sysfs device descriptors, and usbfs control-transfer
// ioctls, addressing devices by their full topological port path rather
// than a flat per-root-port number.
package linux

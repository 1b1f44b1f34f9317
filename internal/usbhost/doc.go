// Package usbhost defines the USB event source abstraction the supervisor
// depends on: hotplug arrival/departure delivery, topological path
// resolution, and the synchronous control transfers used for liveness
// probing. The real implementation lives in the linux-tagged subpackage;
// this package holds the platform-independent interface and a fake used by
// tests.
package usbhost

// Package topopath models the bus/port-chain addressing scheme used to
// identify a USB port independent of any particular device enumerated on
// it: a bus number followed by the chain of hub port numbers leading to the
// port, exactly as Linux names device nodes under /sys/bus/usb/devices
// (e.g. "1-1.2.3").
package topopath

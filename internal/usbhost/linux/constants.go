package linux

// SysfsUSBPath is the base path for USB devices in sysfs.
const SysfsUSBPath = "/sys/bus/usb/devices"

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

// NetlinkKObjectUEvent is the netlink protocol for udev events.
const NetlinkKObjectUEvent = 15 // NETLINK_KOBJECT_UEVENT

// UEventBufferSize is the buffer size for netlink messages.
const UEventBufferSize = 4096

// MaxEpollEvents is the maximum events to retrieve per epoll_wait call.
const MaxEpollEvents = 32

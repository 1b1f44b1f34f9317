//go:build linux && arm

package linux

import (
	"syscall"
	"unsafe"
)

// ctrlTransfer matches the kernel's struct usbdevfs_ctrltransfer layout.
type ctrlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32
	data        uintptr
}

// openDevice opens a usbfs device node for read/write access.
func openDevice(path string) (int, error) {
	pathBytes := make([]byte, len(path)+1)
	copy(pathBytes, path)

	fd, _, errno := syscall.Syscall(
		syscall.SYS_OPEN,
		uintptr(unsafe.Pointer(&pathBytes[0])),
		uintptr(syscall.O_RDWR|syscall.O_CLOEXEC),
		0,
	)
	if errno != 0 {
		return -1, errno
	}
	return int(fd), nil
}

// closeDevice closes a device file descriptor.
func closeDevice(fd int) error {
	_, _, errno := syscall.Syscall(syscall.SYS_CLOSE, uintptr(fd), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ioctlRetval performs an ioctl syscall and returns the result value. The
// usbdevfs ioctl numbers are hand-encoded via the _IOC macros in
// ioctl_linux_arm.go rather than golang.org/x/sys/unix, which does not
// expose USBDEVFS_CONTROL.
func ioctlRetval(fd int, req uintptr, arg uintptr) (int, error) {
	r, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return int(r), errno
	}
	return int(r), nil
}

// doControlTransfer performs a synchronous USBDEVFS_CONTROL transfer.
func doControlTransfer(fd int, reqType, req uint8, value, index uint16, data []byte, timeout uint32) (int, error) {
	ctrl := ctrlTransfer{
		requestType: reqType,
		request:     req,
		value:       value,
		index:       index,
		length:      uint16(len(data)),
		timeout:     timeout,
	}
	if len(data) > 0 {
		ctrl.data = uintptr(unsafe.Pointer(&data[0]))
	}

	n, err := ioctlRetval(fd, ioctlUsbdevfsControl, uintptr(unsafe.Pointer(&ctrl)))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// isNoDevice reports whether err indicates the device was disconnected.
func isNoDevice(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == syscall.ENODEV
}

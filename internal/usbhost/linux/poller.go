//go:build linux

package linux

import (
	"golang.org/x/sys/unix"
)

// poller is a thin epoll wrapper used to implement the event source's
// one-second bounded wait without spinning a dedicated goroutine: the
// event loop calls pollOnce directly from its own tick.
type poller struct {
	epfd   int
	wakefd int
	fds    map[int]bool
}

// newPoller creates an epoll instance and an eventfd used to interrupt a
// blocked wait (e.g. on shutdown).
func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &poller{epfd: epfd, wakefd: wakefd, fds: make(map[int]bool)}
	if err := p.addFD(wakefd); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

func (p *poller) close() error {
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}

func (p *poller) addFD(fd int) error {
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return err
	}
	p.fds[fd] = true
	return nil
}

// wake interrupts a blocked pollOnce call.
func (p *poller) wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wakefd, buf[:])
	return err
}

// pollOnce blocks up to timeoutMillis (or indefinitely if -1) and returns
// the set of ready, non-wake file descriptors.
func (p *poller) pollOnce(timeoutMillis int) ([]int, error) {
	var events [MaxEpollEvents]unix.EpollEvent

	n, err := unix.EpollWait(p.epfd, events[:], timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == p.wakefd {
			var buf [8]byte
			unix.Read(p.wakefd, buf[:])
			continue
		}
		ready = append(ready, fd)
	}
	return ready, nil
}

// Package lockfile implements the advisory process-singleton lock the
// supervisor takes at startup on a well-known path.
package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbpower/pkg"
)

// Lock holds an acquired advisory lock. Closing it releases the lock; the
// lock is also released automatically if the process dies, since it is an
// flock on an open file descriptor rather than a PID-file convention.
type Lock struct {
	file *os.File
}

// Acquire takes an exclusive, non-blocking advisory lock on path, creating
// the file if necessary. It returns pkg.ErrLockHeld if another process
// already holds the lock.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("lockfile: %s: %w", path, pkg.ErrLockHeld)
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}

	pkg.LogInfo(pkg.ComponentLockfile, "lock acquired", "path", path, "pid", os.Getpid())
	return &Lock{file: f}, nil
}

// Release releases the lock and closes the underlying file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}

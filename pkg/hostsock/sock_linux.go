//go:build linux

package hostsock

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/eventfd"
)

const sockCloexec = unix.SOCK_CLOEXEC

// setCloexec is a no-op on Linux, where SOCK_CLOEXEC is applied by
// socket(2) itself.
func setCloexec(int) error { return nil }

// waker wakes goroutines polling a socket when it is closed.
type waker interface {
	FD() int
	Notify() error
	Close() error
}

// newWaker returns an eventfd based waker.
func newWaker() (waker, error) {
	efd, err := eventfd.Create()
	if err != nil {
		return nil, err
	}
	return efd, nil
}

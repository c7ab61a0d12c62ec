//go:build darwin

package hostsock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Darwin's socket(2) does not accept SOCK_CLOEXEC.
const sockCloexec = 0

func setCloexec(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
	return err
}

// waker wakes goroutines polling a socket when it is closed.
type waker interface {
	FD() int
	Notify() error
	Close() error
}

// pipeWaker simulates an eventfd with a pipe. The read end is polled; a
// single byte written to the write end keeps it readable for good.
type pipeWaker struct {
	r, w int
}

func newWaker() (waker, error) {
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		return nil, fmt.Errorf("failed to create wakeup pipe: %w", err)
	}
	for _, fd := range p {
		if err := setCloexec(fd); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, err
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, err
		}
	}
	return &pipeWaker{r: p[0], w: p[1]}, nil
}

func (pw *pipeWaker) FD() int {
	return pw.r
}

func (pw *pipeWaker) Notify() error {
	_, err := unix.Write(pw.w, []byte{1})
	if err == unix.EAGAIN {
		// Pipe already full, hence readable.
		return nil
	}
	return err
}

func (pw *pipeWaker) Close() error {
	err1 := unix.Close(pw.r)
	err2 := unix.Close(pw.w)
	if err1 != nil {
		return err1
	}
	return err2
}

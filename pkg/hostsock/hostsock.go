// Copyright 2026 The rasta-protocol Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostsock is the udp.Driver for the host's POSIX sockets API.
//
// Each socket is a non-blocking AF_INET/SOCK_DGRAM file descriptor.
// Blocking receives poll the socket together with a wakeup descriptor
// (an eventfd on Linux, a pipe on Darwin) that Close signals, so that a
// receiver blocked in another goroutine always returns once the socket is
// closed.
package hostsock

import (
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// errClosing is returned by wait when the socket is being closed.
var errClosing = errors.New("socket is closing")

// Driver creates host sockets.
type Driver struct {
	log logrus.FieldLogger
}

// New returns a host sockets driver. log may be nil.
func New(log logrus.FieldLogger) *Driver {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Driver{log: log.WithField("driver", "hostsock")}
}

// Name implements udp.Driver.Name.
func (*Driver) Name() string {
	return "hostsock"
}

// NewSocket implements udp.Driver.NewSocket.
func (d *Driver) NewSocket() (udp.Socket, error) {
	fd, err := newDatagramFD()
	if err != nil {
		return nil, err
	}
	w, err := newWaker()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s := &socket{w: w, log: d.log}
	s.fd.Store(int32(fd))
	return s, nil
}

// newDatagramFD returns a non-blocking, close-on-exec IPv4 datagram socket.
func newDatagramFD() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|sockCloexec, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	if err := setCloexec(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// socket is a host datagram socket.
type socket struct {
	// gate protects fd against concurrent close. Every user of fd must
	// enter the gate; Close closes it and waits for users to leave.
	gate sync.Gate

	// fd is the host file descriptor, or -1 once Close has started.
	fd atomic.Int32

	// w is signaled by Close to wake waiters.
	w waker

	log logrus.FieldLogger
}

// enterFD enters the gate and returns the FD value.
//
// If enterFD returns ok, s.gate.Leave must be called when done with the FD.
// Callers may only block while within the gate using s.wait.
//
// The returned FD is guaranteed to remain valid until s.gate.Leave.
func (s *socket) enterFD() (int, bool) {
	if !s.gate.Enter() {
		return -1, false
	}

	fd := int(s.fd.Load())
	if fd < 0 {
		s.gate.Leave()
		return -1, false
	}

	return fd, true
}

// wait blocks until the socket FD is ready for reading or writing, depending
// on the value of write.
//
// Returns errClosing if the socket is in the process of closing.
func (s *socket) wait(write bool) error {
	for {
		// Checking the FD on each loop is not strictly necessary, it
		// just avoids an extra poll call.
		fd := s.fd.Load()
		if fd < 0 {
			return errClosing
		}

		events := []unix.PollFd{
			{
				// The actual socket FD.
				Fd:     fd,
				Events: unix.POLLIN,
			},
			{
				// The wakeup FD, signaled when we are closing.
				Fd:     int32(s.w.FD()),
				Events: unix.POLLIN,
			},
		}
		if write {
			events[0].Events = unix.POLLOUT
		}

		_, err := unix.Poll(events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}

		if events[1].Revents&unix.POLLIN == unix.POLLIN {
			// Wakeup signaled, we're closing.
			return errClosing
		}

		return nil
	}
}

// Bind implements udp.Socket.Bind.
func (s *socket) Bind(local udp.Address) error {
	fd, ok := s.enterFD()
	if !ok {
		return udp.ErrClosed
	}
	defer s.gate.Leave()

	if !local.IP.IsUnspecified() {
		if name, err := interfaceName(local.IP); err == nil {
			s.log.WithFields(logrus.Fields{"local": local, "interface": name}).Debug("binding to interface")
		} else {
			s.log.WithField("local", local).WithError(err).Debug("no interface owns the bind address")
		}
	}
	return unix.Bind(fd, &unix.SockaddrInet4{Port: int(local.Port), Addr: local.IP})
}

// LocalAddr implements udp.Socket.LocalAddr.
func (s *socket) LocalAddr() (udp.Address, error) {
	fd, ok := s.enterFD()
	if !ok {
		return udp.Address{}, udp.ErrClosed
	}
	defer s.gate.Leave()

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return udp.Address{}, err
	}
	return fromSockaddr(sa)
}

// RecvFrom implements udp.Socket.RecvFrom.
func (s *socket) RecvFrom(b []byte, block bool) (int, udp.Address, error) {
	fd, ok := s.enterFD()
	if !ok {
		return 0, udp.Address{}, udp.ErrClosed
	}
	// Leave on returns below.
	for {
		// Try a non-blocking recv first, so we don't give up the go runtime M.
		n, from, err := unix.Recvfrom(fd, b, unix.MSG_DONTWAIT)
		if err == nil {
			s.gate.Leave()
			addr, err := fromSockaddr(from)
			if err != nil {
				return 0, udp.Address{}, err
			}
			return n, addr, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.gate.Leave()
			return 0, udp.Address{}, err
		}
		if !block {
			s.gate.Leave()
			return 0, udp.Address{}, udp.ErrWouldBlock
		}

		// Wait for the socket to become readable.
		if err := s.wait(false); err != nil {
			s.gate.Leave()
			if err == errClosing {
				err = udp.ErrClosed
			}
			return 0, udp.Address{}, err
		}
	}
}

// SendTo implements udp.Socket.SendTo.
func (s *socket) SendTo(b []byte, dst udp.Address) error {
	fd, ok := s.enterFD()
	if !ok {
		return udp.ErrClosed
	}
	defer s.gate.Leave()

	to := &unix.SockaddrInet4{Port: int(dst.Port), Addr: dst.IP}
	for {
		err := unix.Sendto(fd, b, 0, to)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return err
		}

		// The send buffer is full; wait for room as a blocking socket would.
		if err := s.wait(true); err != nil {
			if err == errClosing {
				err = udp.ErrClosed
			}
			return err
		}
	}
}

// Close implements udp.Socket.Close.
func (s *socket) Close() error {
	// Set the FD in the socket to -1, to ensure that all future calls to
	// enterFD get nothing and Close calls return immediately.
	fd := int(s.fd.Swap(-1))
	if fd < 0 {
		// Already closed or closing.
		return udp.ErrClosed
	}

	// Wake anything blocked in wait.
	if err := s.w.Notify(); err != nil {
		s.log.WithError(err).Warn("failed to signal socket close")
	}

	// Wait for any outstanding operations to complete.
	s.gate.Close()

	// Close the FD.
	if err := unix.Close(fd); err != nil {
		s.w.Close()
		return err
	}
	return s.w.Close()
}

func fromSockaddr(sa unix.Sockaddr) (udp.Address, error) {
	in, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return udp.Address{}, unix.EAFNOSUPPORT
	}
	return udp.Address{IP: in.Addr, Port: uint16(in.Port)}, nil
}

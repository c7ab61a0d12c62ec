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

package udp

// Driver is a host networking facility able to create datagram sockets.
//
// Exactly two drivers exist: hostsock, over the POSIX sockets API, and
// netstack, over an in-process TCP/IP stack. Callers never see which one
// is in use; they receive a *Transport.
type Driver interface {
	// Name identifies the backend in logs.
	Name() string

	// NewSocket allocates an unbound IPv4 datagram socket.
	NewSocket() (Socket, error)
}

// Socket is one backend datagram resource. Its concrete representation (a
// file descriptor, a stack endpoint) stays inside the driver.
//
// Implementations need not track binding state; Endpoint does that. They
// must guarantee that Close wakes a goroutine blocked in RecvFrom, which
// then returns an error wrapping ErrClosed.
type Socket interface {
	// Bind binds the socket to local. An unspecified IP means every
	// interface; port 0 requests an ephemeral port.
	Bind(local Address) error

	// LocalAddr returns the address the socket is bound to.
	LocalAddr() (Address, error)

	// RecvFrom reads one datagram into b, truncating it to len(b), and
	// returns the number of bytes written and the sender. When block is
	// false and nothing is queued it returns ErrWouldBlock.
	RecvFrom(b []byte, block bool) (int, Address, error)

	// SendTo transmits b as one datagram to dst. An unbound socket is
	// implicitly bound to an ephemeral port.
	SendTo(b []byte, dst Address) error

	// Close releases the socket.
	Close() error
}

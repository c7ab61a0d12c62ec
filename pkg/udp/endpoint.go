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

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Endpoint states. There is no transition out of stateClosed.
const (
	stateOpen uint32 = iota
	stateBound
	stateClosed
)

// Endpoint is an open datagram socket. It is created by Transport.Open and
// owned by the caller until Close.
//
// One goroutine at a time may Receive. Sends may be issued concurrently
// from other goroutines; the endpoint adds no locking around them.
type Endpoint struct {
	sock Socket
	id   uint64
	log  logrus.FieldLogger

	// mu serializes Bind and Close. It is never held across a blocking
	// receive.
	mu    sync.Mutex
	state atomic.Uint32
}

// String implements fmt.Stringer.
func (e *Endpoint) String() string {
	return fmt.Sprintf("udp endpoint %d", e.id)
}

// Bind binds e to port on every local interface.
//
// An endpoint can be bound once. Binding again, or binding after a Send
// implicitly bound an ephemeral port, fails with ErrAlreadyBound.
func (e *Endpoint) Bind(port uint16) error {
	return e.bind(Address{IP: Any, Port: port})
}

// BindToInterface binds e to port on the interface owning localIP, which
// must be a dotted-decimal IPv4 address. A malformed localIP fails with
// InvalidAddress before the backend is touched.
func (e *Endpoint) BindToInterface(port uint16, localIP string) error {
	ip, err := ParseIPv4(localIP)
	if err != nil {
		return &Error{Kind: InvalidAddress, Op: "bind", Addr: localIP, Err: err}
	}
	return e.bind(Address{IP: ip, Port: port})
}

func (e *Endpoint) bind(local Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Load() {
	case stateClosed:
		return &Error{Kind: BindFailed, Op: "bind", Addr: local.String(), Err: ErrClosed}
	case stateBound:
		return &Error{Kind: BindFailed, Op: "bind", Addr: local.String(), Err: ErrAlreadyBound}
	}
	if err := e.sock.Bind(local); err != nil {
		return &Error{Kind: BindFailed, Op: "bind", Addr: local.String(), Err: err}
	}
	e.state.Store(stateBound)
	e.log.WithField("local", local).Debug("endpoint bound")
	return nil
}

// LocalAddr returns the local address of a bound endpoint.
func (e *Endpoint) LocalAddr() (Address, error) {
	switch e.state.Load() {
	case stateClosed:
		return Address{}, ErrClosed
	case stateOpen:
		return Address{}, ErrNotBound
	}
	return e.sock.LocalAddr()
}

// Receive blocks until a datagram arrives and copies at most len(buf)
// bytes of it into buf. It returns the number of bytes written, which is
// 0 for an empty datagram, and the sender's address.
//
// Receive on an endpoint that was never bound fails immediately with
// ErrNotBound. Closing the endpoint from another goroutine makes a pending
// Receive fail with ErrClosed.
func (e *Endpoint) Receive(buf []byte) (int, Address, error) {
	return e.receive(buf, true)
}

// TryReceive is the non-blocking form of Receive. It returns ErrWouldBlock,
// unwrapped, when no datagram is queued.
func (e *Endpoint) TryReceive(buf []byte) (int, Address, error) {
	return e.receive(buf, false)
}

func (e *Endpoint) receive(buf []byte, block bool) (int, Address, error) {
	switch e.state.Load() {
	case stateClosed:
		return 0, Address{}, &Error{Kind: ReceiveFailed, Op: "receive", Err: ErrClosed}
	case stateOpen:
		return 0, Address{}, &Error{Kind: ReceiveFailed, Op: "receive", Err: ErrNotBound}
	}

	n, from, err := e.sock.RecvFrom(buf, block)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return 0, Address{}, ErrWouldBlock
		}
		if e.state.Load() == stateClosed && !errors.Is(err, ErrClosed) {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return 0, Address{}, &Error{Kind: ReceiveFailed, Op: "receive", Err: err}
	}
	return n, from, nil
}

// Send parses host as a dotted-decimal IPv4 address and transmits msg as
// one datagram to host:port. A malformed host fails with InvalidAddress
// and nothing is sent.
func (e *Endpoint) Send(msg []byte, host string, port uint16) error {
	ip, err := ParseIPv4(host)
	if err != nil {
		return &Error{Kind: InvalidAddress, Op: "send", Addr: host, Err: err}
	}
	return e.SendTo(msg, Address{IP: ip, Port: port})
}

// SendTo transmits msg as one datagram to dst. It is typically used to
// reply to the sender returned by Receive.
//
// Sending on an unbound endpoint binds it to an ephemeral port.
func (e *Endpoint) SendTo(msg []byte, dst Address) error {
	if e.state.Load() == stateClosed {
		return &Error{Kind: SendFailed, Op: "send", Addr: dst.String(), Err: ErrClosed}
	}
	if len(msg) > MaxDatagramSize {
		return &Error{Kind: SendFailed, Op: "send", Addr: dst.String(), Err: ErrMessageTooLarge}
	}
	if err := e.sock.SendTo(msg, dst); err != nil {
		if e.state.Load() == stateClosed && !errors.Is(err, ErrClosed) {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return &Error{Kind: SendFailed, Op: "send", Addr: dst.String(), Err: err}
	}
	if e.state.CompareAndSwap(stateOpen, stateBound) {
		e.log.Debug("endpoint implicitly bound by send")
	}
	return nil
}

// Close releases the endpoint. A goroutine blocked in Receive is woken.
// Closing twice returns ErrClosed.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.state.Load() == stateClosed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.state.Store(stateClosed)
	e.mu.Unlock()

	if err := e.sock.Close(); err != nil {
		e.log.WithError(err).Warn("endpoint close failed")
		return err
	}
	e.log.Debug("endpoint closed")
	return nil
}

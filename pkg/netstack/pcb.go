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

package netstack

import (
	"io"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/waiter"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// pcb is a UDP protocol control block: one stack endpoint and the waiter
// queue through which the stack reports readiness.
type pcb struct {
	id    uint64
	stack *Stack
	ep    tcpip.Endpoint
	wq    waiter.Queue

	// closing is closed by Close, before the endpoint is released.
	closing   chan struct{}
	closeOnce sync.Once
}

// Bind implements udp.Socket.Bind.
func (p *pcb) Bind(local udp.Address) error {
	if p.isClosing() {
		return udp.ErrClosed
	}
	if err := p.ep.Bind(toFullAddress(local)); err != nil {
		return &stackError{err}
	}
	return nil
}

// LocalAddr implements udp.Socket.LocalAddr.
func (p *pcb) LocalAddr() (udp.Address, error) {
	if p.isClosing() {
		return udp.Address{}, udp.ErrClosed
	}
	fa, err := p.ep.GetLocalAddress()
	if err != nil {
		return udp.Address{}, &stackError{err}
	}
	return toAddress(fa), nil
}

// RecvFrom implements udp.Socket.RecvFrom.
func (p *pcb) RecvFrom(b []byte, block bool) (int, udp.Address, error) {
	if block {
		// Register before the first read so that a datagram arriving
		// between the read and the wait is not missed.
		entry, notifyCh := waiter.NewChannelEntry(waiter.ReadableEvents)
		p.wq.EventRegister(&entry)
		defer p.wq.EventUnregister(&entry)
		for {
			n, from, ok, err := p.read(b)
			if ok {
				return n, from, err
			}
			select {
			case <-notifyCh:
			case <-p.closing:
				return 0, udp.Address{}, udp.ErrClosed
			}
		}
	}
	n, from, ok, err := p.read(b)
	if !ok {
		return 0, udp.Address{}, udp.ErrWouldBlock
	}
	return n, from, err
}

// read attempts one non-blocking read. ok is false if nothing is queued.
func (p *pcb) read(b []byte) (int, udp.Address, bool, error) {
	w := truncatingWriter{buf: b}
	res, err := p.ep.Read(&w, tcpip.ReadOptions{NeedRemoteAddr: true})
	switch err.(type) {
	case nil:
		return w.n, toAddress(res.RemoteAddr), true, nil
	case *tcpip.ErrWouldBlock:
		return 0, udp.Address{}, false, nil
	case *tcpip.ErrClosedForReceive:
		return 0, udp.Address{}, true, udp.ErrClosed
	default:
		if p.isClosing() {
			return 0, udp.Address{}, true, udp.ErrClosed
		}
		return 0, udp.Address{}, true, &stackError{err}
	}
}

// SendTo implements udp.Socket.SendTo.
func (p *pcb) SendTo(b []byte, dst udp.Address) error {
	if p.isClosing() {
		return udp.ErrClosed
	}
	to := toFullAddress(dst)
	var (
		entry    waiter.Entry
		notifyCh chan struct{}
	)
	for {
		_, err := p.ep.Write(&payload{b: b}, tcpip.WriteOptions{To: &to})
		if err == nil {
			return nil
		}
		if _, ok := err.(*tcpip.ErrWouldBlock); !ok {
			if p.isClosing() {
				return udp.ErrClosed
			}
			return &stackError{err}
		}
		if notifyCh == nil {
			entry, notifyCh = waiter.NewChannelEntry(waiter.WritableEvents)
			p.wq.EventRegister(&entry)
			defer p.wq.EventUnregister(&entry)
			// Retry once registered, room may have appeared meanwhile.
			continue
		}
		select {
		case <-notifyCh:
		case <-p.closing:
			return udp.ErrClosed
		}
	}
}

// Close implements udp.Socket.Close.
func (p *pcb) Close() error {
	closed := false
	p.closeOnce.Do(func() {
		closed = true
		close(p.closing)
		// Closing the endpoint notifies wq, waking readers as well.
		p.ep.Close()
		p.stack.forget(p)
	})
	if !closed {
		return udp.ErrClosed
	}
	return nil
}

func (p *pcb) isClosing() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

// truncatingWriter accepts a whole datagram but keeps only what fits in
// buf.
type truncatingWriter struct {
	buf []byte
	n   int
}

func (w *truncatingWriter) Write(b []byte) (int, error) {
	w.n += copy(w.buf[w.n:], b)
	return len(b), nil
}

// payload is a tcpip.Payloader over a byte slice. Unlike bytes.Reader it
// reports no EOF for empty reads, so empty datagrams can be written.
type payload struct {
	b []byte
}

func (p *payload) Read(dst []byte) (int, error) {
	if len(p.b) == 0 {
		if len(dst) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(dst, p.b)
	p.b = p.b[n:]
	return n, nil
}

func (p *payload) Len() int {
	return len(p.b)
}

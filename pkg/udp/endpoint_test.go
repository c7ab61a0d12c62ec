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
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type datagram struct {
	data []byte
	from Address
}

// fakeSocket records backend calls and delivers datagrams queued on in.
type fakeSocket struct {
	mu     sync.Mutex
	binds  []Address
	sent   []datagram
	local  Address
	in     chan datagram
	closed chan struct{}

	bindErr error
	sendErr error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan datagram, 8),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) Bind(local Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds = append(s.binds, local)
	if s.bindErr != nil {
		return s.bindErr
	}
	s.local = local
	return nil
}

func (s *fakeSocket) LocalAddr() (Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, nil
}

func (s *fakeSocket) RecvFrom(b []byte, block bool) (int, Address, error) {
	if !block {
		select {
		case d := <-s.in:
			return copy(b, d.data), d.from, nil
		case <-s.closed:
			return 0, Address{}, ErrClosed
		default:
			return 0, Address{}, ErrWouldBlock
		}
	}
	select {
	case d := <-s.in:
		return copy(b, d.data), d.from, nil
	case <-s.closed:
		return 0, Address{}, errors.New("fake: socket shut down")
	}
}

func (s *fakeSocket) SendTo(b []byte, dst Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, datagram{data: append([]byte(nil), b...), from: dst})
	if s.local.Port == 0 {
		s.local.Port = 40000
	}
	return nil
}

func (s *fakeSocket) Close() error {
	close(s.closed)
	return nil
}

type fakeDriver struct {
	sockets []*fakeSocket
	err     error
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) NewSocket() (Socket, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func openFake(t *testing.T) (*Endpoint, *fakeSocket) {
	t.Helper()
	d := &fakeDriver{}
	e, err := New(d).Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return e, d.sockets[0]
}

func TestOpenAllocationFailed(t *testing.T) {
	tr := New(&fakeDriver{err: errors.New("too many open files")})
	if _, err := tr.Open(); !errors.Is(err, AllocationFailed) {
		t.Errorf("Open() = %v, want AllocationFailed", err)
	}
}

func TestBindWildcard(t *testing.T) {
	e, s := openFake(t)
	if err := e.Bind(9000); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	want := []Address{{IP: Any, Port: 9000}}
	if diff := cmp.Diff(want, s.binds); diff != "" {
		t.Errorf("binds mismatch (-want +got):\n%s", diff)
	}
}

func TestBindToInterface(t *testing.T) {
	e, s := openFake(t)
	if err := e.BindToInterface(9000, "10.0.0.7"); err != nil {
		t.Fatalf("BindToInterface failed: %v", err)
	}
	want := []Address{{IP: IPv4{10, 0, 0, 7}, Port: 9000}}
	if diff := cmp.Diff(want, s.binds); diff != "" {
		t.Errorf("binds mismatch (-want +got):\n%s", diff)
	}
}

func TestBindToInterfaceInvalidAddress(t *testing.T) {
	for _, ip := range []string{"999.1.1.1", "abc", "", "1.2.3.4.5"} {
		e, s := openFake(t)
		err := e.BindToInterface(9000, ip)
		if !errors.Is(err, InvalidAddress) {
			t.Errorf("BindToInterface(%q) = %v, want InvalidAddress", ip, err)
		}
		if len(s.binds) != 0 {
			t.Errorf("BindToInterface(%q) reached the backend: %v", ip, s.binds)
		}
		// The endpoint is still unbound and usable.
		if err := e.Bind(9000); err != nil {
			t.Errorf("Bind after invalid BindToInterface failed: %v", err)
		}
	}
}

func TestBindTwice(t *testing.T) {
	e, s := openFake(t)
	if err := e.Bind(9000); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	err := e.BindToInterface(9001, "127.0.0.1")
	if !errors.Is(err, BindFailed) || !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second bind = %v, want BindFailed wrapping ErrAlreadyBound", err)
	}
	if len(s.binds) != 1 {
		t.Errorf("second bind reached the backend: %v", s.binds)
	}
}

func TestBindBackendError(t *testing.T) {
	e, s := openFake(t)
	cause := errors.New("address already in use")
	s.bindErr = cause
	err := e.Bind(9000)
	if !errors.Is(err, BindFailed) || !errors.Is(err, cause) {
		t.Errorf("Bind = %v, want BindFailed wrapping %v", err, cause)
	}
	if KindOf(err) != BindFailed {
		t.Errorf("KindOf(%v) = %v, want %v", err, KindOf(err), BindFailed)
	}
}

func TestReceiveUnbound(t *testing.T) {
	e, _ := openFake(t)
	_, _, err := e.Receive(make([]byte, 16))
	if !errors.Is(err, ReceiveFailed) || !errors.Is(err, ErrNotBound) {
		t.Errorf("Receive = %v, want ReceiveFailed wrapping ErrNotBound", err)
	}
}

func TestSendImplicitlyBinds(t *testing.T) {
	e, s := openFake(t)
	if err := e.Send([]byte("PING"), "127.0.0.1", 9000); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	want := []datagram{{data: []byte("PING"), from: Address{IP: Loopback, Port: 9000}}}
	if diff := cmp.Diff(want, s.sent, cmp.AllowUnexported(datagram{})); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if err := e.Bind(9001); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("Bind after Send = %v, want ErrAlreadyBound", err)
	}
	if _, err := e.LocalAddr(); err != nil {
		t.Errorf("LocalAddr after Send failed: %v", err)
	}
}

func TestSendInvalidAddress(t *testing.T) {
	e, s := openFake(t)
	for _, host := range []string{"abc", "256.0.0.1", "127.0.0.1:9000"} {
		if err := e.Send([]byte("x"), host, 9000); !errors.Is(err, InvalidAddress) {
			t.Errorf("Send(%q) = %v, want InvalidAddress", host, err)
		}
	}
	if len(s.sent) != 0 {
		t.Errorf("invalid send reached the backend: %v", s.sent)
	}
}

func TestSendFailed(t *testing.T) {
	e, s := openFake(t)
	s.sendErr = errors.New("network is unreachable")
	if err := e.SendTo([]byte("x"), Address{IP: Loopback, Port: 1}); !errors.Is(err, SendFailed) {
		t.Errorf("SendTo = %v, want SendFailed", err)
	}
	if err := e.SendTo(make([]byte, MaxDatagramSize+1), Address{IP: Loopback, Port: 1}); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized SendTo = %v, want ErrMessageTooLarge", err)
	}
}

func TestReceiveTruncates(t *testing.T) {
	e, s := openFake(t)
	if err := e.Bind(9000); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	from := Address{IP: Loopback, Port: 1234}
	s.in <- datagram{data: []byte("HELLO WORLD"), from: from}
	buf := make([]byte, 5)
	n, got, err := e.Receive(buf)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if n != 5 || string(buf[:n]) != "HELLO" || got != from {
		t.Errorf("Receive = (%d, %q, %v), want (5, \"HELLO\", %v)", n, buf[:n], got, from)
	}
}

func TestTryReceive(t *testing.T) {
	e, s := openFake(t)
	if err := e.Bind(9000); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if _, _, err := e.TryReceive(make([]byte, 4)); err != ErrWouldBlock {
		t.Errorf("TryReceive on empty queue = %v, want ErrWouldBlock", err)
	}
	s.in <- datagram{data: nil, from: Address{IP: Loopback, Port: 1}}
	n, _, err := e.TryReceive(make([]byte, 4))
	if err != nil || n != 0 {
		t.Errorf("TryReceive = (%d, %v), want (0, nil)", n, err)
	}
}

func TestCloseWakesReceive(t *testing.T) {
	e, _ := openFake(t)
	if err := e.Bind(9000); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, _, err := e.Receive(make([]byte, 16))
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ReceiveFailed) || !errors.Is(err, ErrClosed) {
			t.Errorf("Receive = %v, want ReceiveFailed wrapping ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Receive did not return after Close")
	}
}

func TestUseAfterClose(t *testing.T) {
	e, _ := openFake(t)
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != ErrClosed {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
	for _, tc := range []struct {
		name string
		kind Kind
		err  error
	}{
		{"Bind", BindFailed, e.Bind(1)},
		{"SendTo", SendFailed, e.SendTo(nil, Address{IP: Loopback, Port: 1})},
		{"Receive", ReceiveFailed, func() error { _, _, err := e.Receive(nil); return err }()},
	} {
		if !errors.Is(tc.err, tc.kind) || !errors.Is(tc.err, ErrClosed) {
			t.Errorf("%s after Close = %v, want %v wrapping ErrClosed", tc.name, tc.err, tc.kind)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: BindFailed, Op: "bind", Addr: "0.0.0.0:9000", Err: errors.New("address already in use")}
	if got, want := err.Error(), "udp bind 0.0.0.0:9000: bind failed: address already in use"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if errors.Is(err, SendFailed) {
		t.Errorf("errors.Is(%v, SendFailed) = true", err)
	}
}

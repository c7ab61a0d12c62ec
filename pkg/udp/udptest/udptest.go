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

// Package udptest provides a conformance suite that every udp.Driver must
// pass.
package udptest

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// wakeTimeout bounds how long a blocked Receive may take to notice Close.
const wakeTimeout = 5 * time.Second

// Run runs the conformance suite against the driver returned by newDriver.
// newDriver is called once per subtest and may register cleanups on t.
func Run(t *testing.T, newDriver func(t *testing.T) udp.Driver) {
	for _, tc := range []struct {
		name string
		fn   func(t *testing.T, tr *udp.Transport)
	}{
		{"Ping", testPing},
		{"Payloads", testPayloads},
		{"ZeroLength", testZeroLength},
		{"ReplyToSender", testReplyToSender},
		{"BindToInterface", testBindToInterface},
		{"BindToInterfaceInvalid", testBindToInterfaceInvalid},
		{"BindInUse", testBindInUse},
		{"CloseWakesReceive", testCloseWakesReceive},
		{"TryReceive", testTryReceive},
		{"Truncation", testTruncation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, udp.New(newDriver(t)))
		})
	}
}

// Open opens an endpoint on tr and closes it when the test ends.
func Open(t *testing.T, tr *udp.Transport) *udp.Endpoint {
	t.Helper()
	e, err := tr.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// Listen opens an endpoint bound to an ephemeral port on every interface
// and returns it with its port.
func Listen(t *testing.T, tr *udp.Transport) (*udp.Endpoint, uint16) {
	t.Helper()
	e := Open(t, tr)
	if err := e.Bind(0); err != nil {
		t.Fatalf("Bind(0) failed: %v", err)
	}
	local, err := e.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr failed: %v", err)
	}
	if local.Port == 0 {
		t.Fatalf("LocalAddr = %v, want an ephemeral port", local)
	}
	return e, local.Port
}

type result struct {
	n    int
	from udp.Address
	data []byte
	err  error
}

// receiveAsync starts a Receive into a buffer of size n.
func receiveAsync(e *udp.Endpoint, n int) <-chan result {
	c := make(chan result, 1)
	go func() {
		buf := make([]byte, n)
		got, from, err := e.Receive(buf)
		c <- result{n: got, from: from, data: buf[:got], err: err}
	}()
	return c
}

func wait(t *testing.T, c <-chan result) result {
	t.Helper()
	select {
	case r := <-c:
		if r.err != nil {
			t.Fatalf("Receive failed: %v", r.err)
		}
		return r
	case <-time.After(wakeTimeout):
		t.Fatalf("Receive did not return within %v", wakeTimeout)
	}
	panic("unreachable")
}

func testPing(t *testing.T, tr *udp.Transport) {
	a, port := Listen(t, tr)
	b := Open(t, tr)

	c := receiveAsync(a, 64)
	if err := b.Send([]byte("PING"), "127.0.0.1", port); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	r := wait(t, c)

	local, err := b.LocalAddr()
	if err != nil {
		t.Fatalf("sender LocalAddr failed: %v", err)
	}
	want := udp.Address{IP: udp.Loopback, Port: local.Port}
	if r.n != 4 || string(r.data) != "PING" || r.from != want {
		t.Errorf("Receive = (%d, %q, %v), want (4, \"PING\", %v)", r.n, r.data, r.from, want)
	}
}

func testPayloads(t *testing.T, tr *udp.Transport) {
	a, port := Listen(t, tr)
	b, bport := Listen(t, tr)
	dst := udp.Address{IP: udp.Loopback, Port: port}

	for _, size := range []int{1, 2, 17, 512, 1400, 8000} {
		p := make([]byte, size)
		for i := range p {
			p[i] = byte(i*7 + size)
		}
		c := receiveAsync(a, 9000)
		if err := b.SendTo(p, dst); err != nil {
			t.Fatalf("SendTo(%d bytes) failed: %v", size, err)
		}
		r := wait(t, c)
		if !bytes.Equal(r.data, p) {
			t.Errorf("payload of %d bytes mismatch: got %d bytes", size, r.n)
		}
		if r.from.Port != bport {
			t.Errorf("sender port = %d, want %d", r.from.Port, bport)
		}
	}
}

func testZeroLength(t *testing.T, tr *udp.Transport) {
	a, port := Listen(t, tr)
	b := Open(t, tr)

	c := receiveAsync(a, 16)
	if err := b.Send(nil, "127.0.0.1", port); err != nil {
		t.Fatalf("zero-length Send failed: %v", err)
	}
	r := wait(t, c)
	if r.n != 0 {
		t.Errorf("Receive returned %d bytes, want 0", r.n)
	}
	if r.from.IP != udp.Loopback || r.from.Port == 0 {
		t.Errorf("sender = %v, want 127.0.0.1 and a non-zero port", r.from)
	}
}

func testReplyToSender(t *testing.T, tr *udp.Transport) {
	server, port := Listen(t, tr)
	client, _ := Listen(t, tr)

	sc := receiveAsync(server, 64)
	cc := receiveAsync(client, 64)
	if err := client.Send([]byte("request"), "127.0.0.1", port); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	req := wait(t, sc)
	if err := server.SendTo([]byte("response"), req.from); err != nil {
		t.Fatalf("SendTo sender failed: %v", err)
	}
	resp := wait(t, cc)
	if string(resp.data) != "response" {
		t.Errorf("reply = %q, want %q", resp.data, "response")
	}
	if resp.from.Port != port {
		t.Errorf("reply came from port %d, want %d", resp.from.Port, port)
	}
}

func testBindToInterface(t *testing.T, tr *udp.Transport) {
	a := Open(t, tr)
	if err := a.BindToInterface(0, "127.0.0.1"); err != nil {
		t.Fatalf("BindToInterface failed: %v", err)
	}
	local, err := a.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr failed: %v", err)
	}
	if local.IP != udp.Loopback {
		t.Errorf("LocalAddr = %v, want 127.0.0.1", local)
	}

	b := Open(t, tr)
	c := receiveAsync(a, 16)
	if err := b.SendTo([]byte("iface"), local); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}
	if r := wait(t, c); string(r.data) != "iface" {
		t.Errorf("Receive = %q, want %q", r.data, "iface")
	}
}

func testBindToInterfaceInvalid(t *testing.T, tr *udp.Transport) {
	for _, ip := range []string{"999.1.1.1", "abc"} {
		e := Open(t, tr)
		err := e.BindToInterface(0, ip)
		if !errors.Is(err, udp.InvalidAddress) {
			t.Errorf("BindToInterface(%q) = %v, want InvalidAddress", ip, err)
		}
		// Nothing was bound, so the endpoint can still be bound.
		if err := e.Bind(0); err != nil {
			t.Errorf("Bind after BindToInterface(%q) failed: %v", ip, err)
		}
	}
}

func testBindInUse(t *testing.T, tr *udp.Transport) {
	_, port := Listen(t, tr)
	e := Open(t, tr)
	if err := e.Bind(port); !errors.Is(err, udp.BindFailed) {
		t.Errorf("Bind to port %d in use = %v, want BindFailed", port, err)
	}
}

func testCloseWakesReceive(t *testing.T, tr *udp.Transport) {
	a, _ := Listen(t, tr)
	c := make(chan error, 1)
	go func() {
		_, _, err := a.Receive(make([]byte, 16))
		c <- err
	}()
	// Give the receiver a chance to block.
	time.Sleep(50 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-c:
		if !errors.Is(err, udp.ReceiveFailed) || !errors.Is(err, udp.ErrClosed) {
			t.Errorf("Receive = %v, want ReceiveFailed wrapping ErrClosed", err)
		}
	case <-time.After(wakeTimeout):
		t.Fatalf("Receive still blocked %v after Close", wakeTimeout)
	}
}

func testTryReceive(t *testing.T, tr *udp.Transport) {
	a, port := Listen(t, tr)
	if _, _, err := a.TryReceive(make([]byte, 16)); err != udp.ErrWouldBlock {
		t.Fatalf("TryReceive on idle endpoint = %v, want ErrWouldBlock", err)
	}
	b := Open(t, tr)
	if err := b.Send([]byte("poll"), "127.0.0.1", port); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	buf := make([]byte, 16)
	deadline := time.Now().Add(wakeTimeout)
	for {
		n, _, err := a.TryReceive(buf)
		if err == nil {
			if string(buf[:n]) != "poll" {
				t.Errorf("TryReceive = %q, want %q", buf[:n], "poll")
			}
			return
		}
		if err != udp.ErrWouldBlock {
			t.Fatalf("TryReceive failed: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("no datagram after %v", wakeTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func testTruncation(t *testing.T, tr *udp.Transport) {
	a, port := Listen(t, tr)
	b := Open(t, tr)

	c := receiveAsync(a, 4)
	if err := b.Send([]byte("truncated"), "127.0.0.1", port); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if r := wait(t, c); r.n != 4 || string(r.data) != "trun" {
		t.Errorf("Receive = (%d, %q), want (4, \"trun\")", r.n, r.data)
	}
}

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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
	"github.com/FlorianFrank/rasta-protocol/pkg/udp/udptest"
)

func newStack(t *testing.T, addrs ...string) *Stack {
	t.Helper()
	st, err := New(Config{Addresses: addrs}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestConformance(t *testing.T) {
	udptest.Run(t, func(t *testing.T) udp.Driver {
		return newStack(t)
	})
}

func TestNewInvalidAddresses(t *testing.T) {
	for _, a := range []string{"10.0.0.1", "abc/24", "fd00::1/64"} {
		if _, err := New(Config{Addresses: []string{a}}, nil); err == nil {
			t.Errorf("New with address %q succeeded, want error", a)
		}
	}
}

func TestBindToConfiguredInterface(t *testing.T) {
	st := newStack(t, "10.0.0.1/24")
	tr := udp.New(st)

	a := udptest.Open(t, tr)
	if err := a.BindToInterface(0, "10.0.0.1"); err != nil {
		t.Fatalf("BindToInterface failed: %v", err)
	}
	local, err := a.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr failed: %v", err)
	}

	// A datagram to the loopback address on the same port must not reach
	// an endpoint bound to 10.0.0.1.
	stray := udptest.Open(t, tr)
	if err := stray.Send([]byte("stray"), "127.0.0.1", local.Port); err != nil {
		t.Fatalf("stray Send failed: %v", err)
	}
	b := udptest.Open(t, tr)
	if err := b.SendTo([]byte("direct"), local); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}

	buf := make([]byte, 16)
	n, from, err := a.Receive(buf)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got := string(buf[:n]); got != "direct" {
		t.Errorf("Receive = %q, want %q", got, "direct")
	}
	blocal, err := b.LocalAddr()
	if err != nil {
		t.Fatalf("sender LocalAddr failed: %v", err)
	}
	if from.Port != blocal.Port {
		t.Errorf("sender port = %d, want %d", from.Port, blocal.Port)
	}
}

func TestBindUnassignedAddress(t *testing.T) {
	tr := udp.New(newStack(t))
	e := udptest.Open(t, tr)
	if err := e.BindToInterface(0, "10.9.9.9"); !errors.Is(err, udp.BindFailed) {
		t.Errorf("BindToInterface(10.9.9.9) = %v, want BindFailed", err)
	}
}

func TestEndpointsRegistry(t *testing.T) {
	st := newStack(t)
	tr := udp.New(st)

	a, port := udptest.Listen(t, tr)
	b := udptest.Open(t, tr)

	want := []EndpointInfo{
		{ID: 1, Local: udp.Address{Port: port}},
		{ID: 2},
	}
	if diff := cmp.Diff(want, st.Endpoints()); diff != "" {
		t.Errorf("Endpoints mismatch (-want +got):\n%s", diff)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := st.Endpoints(); len(got) != 0 {
		t.Errorf("Endpoints after Close = %v, want none", got)
	}
}

func TestStackCloseWakesReceivers(t *testing.T) {
	st, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tr := udp.New(st)
	e, _ := udptest.Listen(t, tr)

	errc := make(chan error, 1)
	go func() {
		_, _, err := e.Receive(make([]byte, 8))
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	st.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, udp.ReceiveFailed) {
			t.Errorf("Receive = %v, want ReceiveFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Receive still blocked after stack Close")
	}

	if _, err := tr.Open(); !errors.Is(err, udp.AllocationFailed) || !errors.Is(err, ErrStackClosed) {
		t.Errorf("Open after stack Close = %v, want AllocationFailed wrapping ErrStackClosed", err)
	}
}

func TestAddresses(t *testing.T) {
	st := newStack(t, "192.168.7.2/24")
	var got []string
	for _, p := range st.Addresses() {
		got = append(got, p.String())
	}
	want := []string{"127.0.0.1/8", "192.168.7.2/24"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Addresses mismatch (-want +got):\n%s", diff)
	}
}

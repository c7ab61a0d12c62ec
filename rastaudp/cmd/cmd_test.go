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

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FlorianFrank/rasta-protocol/pkg/netstack"
	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
	"github.com/FlorianFrank/rasta-protocol/pkg/udp/udptest"
)

func newNetstackTransport(t *testing.T) *udp.Transport {
	t.Helper()
	st, err := netstack.New(netstack.Config{}, nil)
	if err != nil {
		t.Fatalf("netstack.New failed: %v", err)
	}
	t.Cleanup(st.Close)
	return udp.New(st)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestEchoPing(t *testing.T) {
	tr := newNetstackTransport(t)
	log := quietLogger()

	server, port := udptest.Listen(t, tr)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeEcho(ctx, log, server) }()

	client, _ := udptest.Listen(t, tr)
	dst := udp.Address{IP: udp.Loopback, Port: port}
	rtts, err := Ping(context.Background(), log, client, dst, PingOptions{
		Count:   3,
		Timeout: time.Second,
		Retries: 2,
	})
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if len(rtts) != 3 {
		t.Errorf("Ping returned %d round trips, want 3", len(rtts))
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("ServeEcho = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ServeEcho did not stop after cancel")
	}
}

func TestPingNoReply(t *testing.T) {
	tr := newNetstackTransport(t)
	client, _ := udptest.Listen(t, tr)

	// Nothing listens on this port.
	silent, port := udptest.Listen(t, tr)
	silent.Close()

	_, err := Ping(context.Background(), quietLogger(), client, udp.Address{IP: udp.Loopback, Port: port}, PingOptions{
		Count:   1,
		Timeout: 20 * time.Millisecond,
		Retries: 1,
	})
	if !errors.Is(err, errNoReply) {
		t.Errorf("Ping = %v, want errNoReply", err)
	}
}

func TestServeEchoUnbound(t *testing.T) {
	tr := newNetstackTransport(t)
	e := udptest.Open(t, tr)
	if err := ServeEcho(context.Background(), quietLogger(), e); !errors.Is(err, udp.ErrNotBound) {
		t.Errorf("ServeEcho on unbound endpoint = %v, want ErrNotBound", err)
	}
}

func TestParsePorts(t *testing.T) {
	ports, err := parsePorts("9000, 9001,0")
	if err != nil {
		t.Fatalf("parsePorts failed: %v", err)
	}
	if len(ports) != 3 || ports[0] != 9000 || ports[1] != 9001 || ports[2] != 0 {
		t.Errorf("parsePorts = %v, want [9000 9001 0]", ports)
	}
	for _, s := range []string{"", "70000", "x", "9000,"} {
		if _, err := parsePorts(s); err == nil {
			t.Errorf("parsePorts(%q) succeeded, want error", s)
		}
	}
}

func TestFormatPayload(t *testing.T) {
	if got, want := formatPayload([]byte("PING"), false), `"PING"`; got != want {
		t.Errorf("formatPayload text = %s, want %s", got, want)
	}
	if got, want := formatPayload([]byte{0xde, 0xad}, true), "dead"; got != want {
		t.Errorf("formatPayload hex = %s, want %s", got, want)
	}
}

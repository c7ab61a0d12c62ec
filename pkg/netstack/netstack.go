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

// Package netstack is the udp.Driver for an in-process TCP/IP stack.
//
// It plays the role an embedded stack such as lwIP plays on a partitioned
// RTOS: sockets are protocol control blocks owned by the stack rather than
// host file descriptors, and readiness is delivered through waiter queue
// callbacks instead of blocking system calls. The stack has a single
// loopback NIC carrying 127.0.0.1/8 plus any configured addresses, so
// every endpoint of one Stack can reach every other.
package netstack

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"
	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/loopback"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	udpproto "gvisor.dev/gvisor/pkg/tcpip/transport/udp"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

const nicID tcpip.NICID = 1

// loopbackPrefix is always assigned to the stack's NIC.
var loopbackPrefix = netip.MustParsePrefix("127.0.0.1/8")

// ErrStackClosed is returned by NewSocket after Close.
var ErrStackClosed = errors.New("netstack: stack closed")

// Config configures a Stack.
type Config struct {
	// Addresses are additional IPv4 prefixes, such as "10.0.0.1/24",
	// assigned to the stack's NIC.
	Addresses []string
}

// Stack is an in-process IPv4/UDP stack. It implements udp.Driver.
type Stack struct {
	s        *stack.Stack
	prefixes []netip.Prefix
	log      logrus.FieldLogger

	mu sync.Mutex

	// pcbs holds live sockets ordered by id. Protected by mu.
	pcbs *btree.BTreeG[*pcb]

	// nextID is the id of the next socket. Protected by mu.
	nextID uint64

	// closed is set by Close. Protected by mu.
	closed bool
}

// New creates a stack. log may be nil.
func New(cfg Config, log logrus.FieldLogger) (*Stack, error) {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	prefixes := []netip.Prefix{loopbackPrefix}
	for _, a := range cfg.Addresses {
		p, err := netip.ParsePrefix(a)
		if err != nil {
			return nil, fmt.Errorf("netstack: address %q: %w", a, err)
		}
		if !p.Addr().Is4() {
			return nil, fmt.Errorf("netstack: address %q is not IPv4", a)
		}
		prefixes = append(prefixes, p)
	}

	s := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{udpproto.NewProtocol},
		HandleLocal:        true,
	})
	if err := s.CreateNIC(nicID, loopback.New()); err != nil {
		s.Close()
		return nil, fmt.Errorf("netstack: creating NIC: %s", err)
	}
	for _, p := range prefixes {
		pa := tcpip.ProtocolAddress{
			Protocol: ipv4.ProtocolNumber,
			AddressWithPrefix: tcpip.AddressWithPrefix{
				Address:   tcpip.AddrFrom4(p.Addr().As4()),
				PrefixLen: p.Bits(),
			},
		}
		if err := s.AddProtocolAddress(nicID, pa, stack.AddressProperties{}); err != nil {
			s.Close()
			return nil, fmt.Errorf("netstack: adding address %s: %s", p, err)
		}
	}
	s.SetRouteTable([]tcpip.Route{{Destination: header.IPv4EmptySubnet, NIC: nicID}})

	log = log.WithField("driver", "netstack")
	log.WithField("addresses", prefixes).Info("netstack started")
	return &Stack{
		s:        s,
		prefixes: prefixes,
		log:      log,
		pcbs:     btree.NewG[*pcb](2, func(a, b *pcb) bool { return a.id < b.id }),
		nextID:   1,
	}, nil
}

// Name implements udp.Driver.Name.
func (*Stack) Name() string {
	return "netstack"
}

// Addresses returns the prefixes assigned to the stack's NIC.
func (st *Stack) Addresses() []netip.Prefix {
	return append([]netip.Prefix(nil), st.prefixes...)
}

// NewSocket implements udp.Driver.NewSocket.
func (st *Stack) NewSocket() (udp.Socket, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil, ErrStackClosed
	}

	p := &pcb{
		id:      st.nextID,
		stack:   st,
		closing: make(chan struct{}),
	}
	ep, err := st.s.NewEndpoint(udpproto.ProtocolNumber, ipv4.ProtocolNumber, &p.wq)
	if err != nil {
		return nil, &stackError{err}
	}
	p.ep = ep
	st.nextID++
	st.pcbs.ReplaceOrInsert(p)
	return p, nil
}

// EndpointInfo describes a live socket.
type EndpointInfo struct {
	ID    uint64
	Local udp.Address
}

// Endpoints lists the live sockets in creation order.
func (st *Stack) Endpoints() []EndpointInfo {
	st.mu.Lock()
	defer st.mu.Unlock()
	infos := make([]EndpointInfo, 0, st.pcbs.Len())
	st.pcbs.Ascend(func(p *pcb) bool {
		info := EndpointInfo{ID: p.id}
		if fa, err := p.ep.GetLocalAddress(); err == nil {
			info.Local = toAddress(fa)
		}
		infos = append(infos, info)
		return true
	})
	return infos
}

// Close closes every live socket, waking their receivers, and tears the
// stack down.
func (st *Stack) Close() {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return
	}
	st.closed = true
	var live []*pcb
	st.pcbs.Ascend(func(p *pcb) bool {
		live = append(live, p)
		return true
	})
	st.mu.Unlock()

	for _, p := range live {
		p.Close()
	}
	st.s.Close()
	st.s.Wait()
	st.log.WithField("closed_endpoints", len(live)).Info("netstack stopped")
}

// forget removes p from the registry.
func (st *Stack) forget(p *pcb) {
	st.mu.Lock()
	st.pcbs.Delete(p)
	st.mu.Unlock()
}

// stackError adapts a tcpip.Error to error.
type stackError struct {
	err tcpip.Error
}

func (e *stackError) Error() string {
	return e.err.String()
}

func toAddress(fa tcpip.FullAddress) udp.Address {
	a := udp.Address{Port: fa.Port}
	if fa.Addr.Len() == 4 {
		a.IP = fa.Addr.As4()
	}
	return a
}

func toFullAddress(a udp.Address) tcpip.FullAddress {
	fa := tcpip.FullAddress{Port: a.Port}
	if !a.IP.IsUnspecified() {
		fa.Addr = tcpip.AddrFrom4(a.IP)
	}
	return fa
}

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
	"fmt"
	"net/netip"
	"strconv"
)

// HostStrLen is the size of a buffer holding a dotted-decimal IPv4 address
// and its NUL terminator, as exchanged with C peers of the protocol stack.
const HostStrLen = 16

// MaxDatagramSize is the largest payload carried by a single UDP datagram
// over IPv4.
const MaxDatagramSize = 65507

// IPv4 is an IPv4 address in network byte order.
type IPv4 [4]byte

var (
	// Any is the wildcard address; binding to it listens on every local
	// interface.
	Any IPv4

	// Loopback is 127.0.0.1.
	Loopback = IPv4{127, 0, 0, 1}
)

// ParseIPv4 parses a dotted-decimal IPv4 address.
//
// Only the canonical form is accepted: four decimal octets in the range
// 0-255 without leading zeros, so that ParseIPv4(s).String() == s.
func ParseIPv4(s string) (IPv4, error) {
	if len(s) >= HostStrLen {
		return IPv4{}, fmt.Errorf("%q is longer than %d characters", s, HostStrLen-1)
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return IPv4{}, err
	}
	if !a.Is4() {
		return IPv4{}, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return IPv4(a.As4()), nil
}

// String returns the dotted-decimal form of ip. The result never exceeds
// HostStrLen-1 bytes.
func (ip IPv4) String() string {
	return netip.AddrFrom4(ip).String()
}

// IsUnspecified reports whether ip is the wildcard address.
func (ip IPv4) IsUnspecified() bool {
	return ip == Any
}

// Address is an IPv4 transport address.
type Address struct {
	IP   IPv4
	Port uint16
}

// ResolveAddress parses host as a dotted-decimal IPv4 address and pairs it
// with port. No name resolution is performed.
func ResolveAddress(host string, port uint16) (Address, error) {
	ip, err := ParseIPv4(host)
	if err != nil {
		return Address{}, err
	}
	return Address{IP: ip, Port: port}, nil
}

// String implements fmt.Stringer in host:port form.
func (a Address) String() string {
	return a.IP.String() + ":" + strconv.Itoa(int(a.Port))
}

// AddrPort converts a to its net/netip form.
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(a.IP), a.Port)
}

// AddressToString returns the dotted-decimal host part of a. It is the
// inverse of ParseIPv4 for canonical input.
func AddressToString(a Address) string {
	return a.IP.String()
}

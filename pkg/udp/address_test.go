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
	"testing"
)

func TestParseIPv4RoundTrip(t *testing.T) {
	for _, s := range []string{
		"0.0.0.0",
		"127.0.0.1",
		"10.0.0.1",
		"192.168.178.254",
		"255.255.255.255",
	} {
		ip, err := ParseIPv4(s)
		if err != nil {
			t.Errorf("ParseIPv4(%q) failed: %v", s, err)
			continue
		}
		if got := AddressToString(Address{IP: ip, Port: 4711}); got != s {
			t.Errorf("AddressToString(ParseIPv4(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestParseIPv4Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"abc",
		"999.1.1.1",
		"1.2.3",
		"1.2.3.4.5",
		"01.2.3.4",
		"1.2.3.4 ",
		"::1",
		"::ffff:127.0.0.1",
		"127.0.0.1:9000",
		"localhost",
		"1111.2222.3333.4444",
	} {
		if ip, err := ParseIPv4(s); err == nil {
			t.Errorf("ParseIPv4(%q) = %v, want error", s, ip)
		}
	}
}

func TestIPv4StringFitsHostBuffer(t *testing.T) {
	ip := IPv4{255, 255, 255, 255}
	if l := len(ip.String()); l > HostStrLen-1 {
		t.Errorf("len(%q) = %d, want <= %d", ip.String(), l, HostStrLen-1)
	}
}

func TestAddressString(t *testing.T) {
	a := Address{IP: Loopback, Port: 9000}
	if got, want := a.String(), "127.0.0.1:9000"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := a.AddrPort().String(), "127.0.0.1:9000"; got != want {
		t.Errorf("AddrPort() = %q, want %q", got, want)
	}
}

func TestResolveAddress(t *testing.T) {
	a, err := ResolveAddress("10.1.2.3", 53)
	if err != nil {
		t.Fatalf("ResolveAddress failed: %v", err)
	}
	if want := (Address{IP: IPv4{10, 1, 2, 3}, Port: 53}); a != want {
		t.Errorf("ResolveAddress = %v, want %v", a, want)
	}
	if _, err := ResolveAddress("10.1.2", 53); err == nil {
		t.Errorf("ResolveAddress(\"10.1.2\") succeeded, want error")
	}
}

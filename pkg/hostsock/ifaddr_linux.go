//go:build linux

package hostsock

import (
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// Interfaces returns every IPv4 address assigned to a host interface, as
// reported by rtnetlink. Any of them is a valid BindToInterface address.
func Interfaces() ([]Interface, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("listing IPv4 addresses: %w", err)
	}
	names := make(map[int]string)
	var ifs []Interface
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		ip4 := a.IP.To4()
		if ip4 == nil {
			continue
		}
		name, ok := names[a.LinkIndex]
		if !ok {
			link, err := netlink.LinkByIndex(a.LinkIndex)
			if err != nil {
				return nil, fmt.Errorf("looking up link %d: %w", a.LinkIndex, err)
			}
			name = link.Attrs().Name
			names[a.LinkIndex] = name
		}
		ones, _ := a.Mask.Size()
		ifs = append(ifs, Interface{Name: name, IP: udp.IPv4(ip4), PrefixLen: ones})
	}
	return ifs, nil
}

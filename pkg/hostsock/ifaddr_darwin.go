//go:build darwin

package hostsock

import (
	"net"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// Interfaces returns every IPv4 address assigned to a host interface. Any
// of them is a valid BindToInterface address.
func Interfaces() ([]Interface, error) {
	nifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ifs []Interface
	for _, nif := range nifs {
		addrs, err := nif.Addrs()
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			ones, _ := ipnet.Mask.Size()
			ifs = append(ifs, Interface{Name: nif.Name, IP: udp.IPv4(ip4), PrefixLen: ones})
		}
	}
	return ifs, nil
}

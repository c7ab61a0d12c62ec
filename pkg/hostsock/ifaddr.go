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

package hostsock

import (
	"fmt"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// Interface is an IPv4 address assigned to a host network interface.
type Interface struct {
	Name      string
	IP        udp.IPv4
	PrefixLen int
}

// String implements fmt.Stringer.
func (i Interface) String() string {
	return fmt.Sprintf("%s %s/%d", i.Name, i.IP, i.PrefixLen)
}

// interfaceName returns the name of the interface owning ip.
func interfaceName(ip udp.IPv4) (string, error) {
	ifs, err := Interfaces()
	if err != nil {
		return "", err
	}
	for _, i := range ifs {
		if i.IP == ip {
			return i.Name, nil
		}
	}
	return "", fmt.Errorf("no interface has address %s", ip)
}

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

// Package backend selects the udp.Driver used by the rastaudp tool.
package backend

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/FlorianFrank/rasta-protocol/pkg/hostsock"
	"github.com/FlorianFrank/rasta-protocol/pkg/netstack"
	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
	"github.com/FlorianFrank/rasta-protocol/rastaudp/config"
)

// Name returns the backend c selects.
func Name(c *config.Config) string {
	if c.Backend == "" {
		return Default
	}
	return c.Backend
}

// Open returns the driver selected by c. The returned release function
// must be called once the driver is no longer used.
func Open(c *config.Config, log logrus.FieldLogger) (udp.Driver, func(), error) {
	switch name := Name(c); name {
	case config.BackendHostsock:
		return hostsock.New(log), func() {}, nil
	case config.BackendNetstack:
		st, err := netstack.New(netstack.Config{Addresses: c.Netstack.Addresses}, log)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
}

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
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/FlorianFrank/rasta-protocol/pkg/hostsock"
	"github.com/FlorianFrank/rasta-protocol/pkg/netstack"
	"github.com/FlorianFrank/rasta-protocol/rastaudp/backend"
)

// Ifaces implements subcommands.Command for the "ifaces" command.
type Ifaces struct{}

// Name implements subcommands.Command.Name.
func (*Ifaces) Name() string {
	return "ifaces"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Ifaces) Synopsis() string {
	return "list IPv4 addresses usable with -ip"
}

// Usage implements subcommands.Command.Usage.
func (*Ifaces) Usage() string {
	return `ifaces - list the addresses the configured backend can bind to.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Ifaces) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Ifaces) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf, log := unpack(args)
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	d, release, err := backend.Open(conf, log)
	if err != nil {
		log.WithError(err).Error("opening backend")
		return subcommands.ExitFailure
	}
	defer release()

	switch d := d.(type) {
	case *netstack.Stack:
		for _, p := range d.Addresses() {
			fmt.Printf("netstack %s\n", p)
		}
	default:
		ifs, err := hostsock.Interfaces()
		if err != nil {
			log.WithError(err).Error("listing interfaces")
			return subcommands.ExitFailure
		}
		for _, i := range ifs {
			fmt.Println(i)
		}
	}
	return subcommands.ExitSuccess
}

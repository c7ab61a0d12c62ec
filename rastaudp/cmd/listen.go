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
	"github.com/sirupsen/logrus"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// Listen implements subcommands.Command for the "listen" command.
type Listen struct {
	port  uint
	ip    string
	count int
	size  int
	hex   bool
}

// Name implements subcommands.Command.Name.
func (*Listen) Name() string {
	return "listen"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Listen) Synopsis() string {
	return "receive datagrams on a port and print them"
}

// Usage implements subcommands.Command.Usage.
func (*Listen) Usage() string {
	return `listen [flags] - bind a port and print every datagram received.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Listen) SetFlags(f *flag.FlagSet) {
	f.UintVar(&l.port, "port", 0, "port to bind, 0 for an ephemeral port")
	f.StringVar(&l.ip, "ip", "", "bind only the interface owning this IPv4 address")
	f.IntVar(&l.count, "count", 0, "exit after this many datagrams, 0 for no limit")
	f.IntVar(&l.size, "size", udp.MaxDatagramSize, "receive buffer size; longer datagrams are truncated")
	f.BoolVar(&l.hex, "hex", false, "print payloads as hex")
}

// Execute implements subcommands.Command.Execute.
func (l *Listen) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf, log := unpack(args)
	if f.NArg() != 0 || l.port > 0xffff || l.size < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	checkPrivilegedPort(conf, log, uint16(l.port))

	tr, release, err := newTransport(conf, log)
	if err != nil {
		log.WithError(err).Error("opening backend")
		return subcommands.ExitFailure
	}
	defer release()

	e, err := tr.Open()
	if err != nil {
		log.WithError(err).Error("opening endpoint")
		return subcommands.ExitFailure
	}
	defer e.Close()
	if err := bind(e, uint16(l.port), l.ip); err != nil {
		log.WithError(err).Error("binding endpoint")
		return subcommands.ExitFailure
	}
	local, err := e.LocalAddr()
	if err != nil {
		log.WithError(err).Error("reading local address")
		return subcommands.ExitFailure
	}
	log.WithFields(logrus.Fields{"local": local, "backend": tr.Backend()}).Info("listening")

	stop := closeOnDone(ctx, e)
	defer stop()

	buf := make([]byte, l.size)
	for i := 0; l.count == 0 || i < l.count; i++ {
		n, from, err := e.Receive(buf)
		if err != nil {
			if stopped(ctx, err) {
				return subcommands.ExitSuccess
			}
			log.WithError(err).Error("receiving")
			return subcommands.ExitFailure
		}
		fmt.Printf("%s %d %s\n", from, n, formatPayload(buf[:n], l.hex))
	}
	return subcommands.ExitSuccess
}

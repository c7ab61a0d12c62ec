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
	"encoding/hex"
	"flag"
	"strings"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Send implements subcommands.Command for the "send" command.
type Send struct {
	host     string
	port     uint
	bindPort uint
	bindIP   string
	count    int
	rate     float64
	hex      bool
}

// Name implements subcommands.Command.Name.
func (*Send) Name() string {
	return "send"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Send) Synopsis() string {
	return "send a datagram to a host and port"
}

// Usage implements subcommands.Command.Usage.
func (*Send) Usage() string {
	return `send [flags] <message> - send <message> as one datagram.

The message may be empty. With -hex it is decoded from hexadecimal.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Send) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.host, "host", "127.0.0.1", "destination IPv4 address")
	f.UintVar(&s.port, "port", 0, "destination port")
	f.UintVar(&s.bindPort, "bind-port", 0, "local port to bind before sending, 0 for an ephemeral port")
	f.StringVar(&s.bindIP, "bind-ip", "", "bind only the interface owning this IPv4 address")
	f.IntVar(&s.count, "count", 1, "number of copies to send")
	f.Float64Var(&s.rate, "rate", 0, "datagrams per second, 0 for no limit")
	f.BoolVar(&s.hex, "hex", false, "decode the message from hexadecimal")
}

// Execute implements subcommands.Command.Execute.
func (s *Send) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf, log := unpack(args)
	if f.NArg() > 1 || s.port == 0 || s.port > 0xffff || s.bindPort > 0xffff || s.count < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	msg := []byte(strings.Join(f.Args(), ""))
	if s.hex {
		var err error
		if msg, err = hex.DecodeString(string(msg)); err != nil {
			log.WithError(err).Error("decoding message")
			return subcommands.ExitUsageError
		}
	}

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
	if s.bindPort != 0 || s.bindIP != "" {
		checkPrivilegedPort(conf, log, uint16(s.bindPort))
		if err := bind(e, uint16(s.bindPort), s.bindIP); err != nil {
			log.WithError(err).Error("binding endpoint")
			return subcommands.ExitFailure
		}
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if s.rate > 0 {
		lim = rate.NewLimiter(rate.Limit(s.rate), 1)
	}
	for i := 0; i < s.count; i++ {
		if err := lim.Wait(ctx); err != nil {
			log.WithError(err).Warn("send interrupted")
			return subcommands.ExitFailure
		}
		if err := e.Send(msg, s.host, uint16(s.port)); err != nil {
			log.WithError(err).Error("sending")
			return subcommands.ExitFailure
		}
	}
	log.WithFields(logrus.Fields{"count": s.count, "bytes": len(msg), "host": s.host, "port": s.port}).Info("sent")
	return subcommands.ExitSuccess
}

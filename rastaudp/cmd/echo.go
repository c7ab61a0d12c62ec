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

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// Echo implements subcommands.Command for the "echo" command.
type Echo struct {
	ports   string
	ip      string
	pidFile string
}

// Name implements subcommands.Command.Name.
func (*Echo) Name() string {
	return "echo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Echo) Synopsis() string {
	return "reflect every datagram back to its sender"
}

// Usage implements subcommands.Command.Usage.
func (*Echo) Usage() string {
	return `echo [flags] - serve a UDP echo on one or more ports.

Readiness is reported to systemd once every port is bound.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Echo) SetFlags(f *flag.FlagSet) {
	f.StringVar(&e.ports, "ports", "9000", "comma separated ports to serve")
	f.StringVar(&e.ip, "ip", "", "bind only the interface owning this IPv4 address")
	f.StringVar(&e.pidFile, "pid-file", "", "lock file preventing a second instance (default from config)")
}

// Execute implements subcommands.Command.Execute.
func (e *Echo) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf, log := unpack(args)
	ports, err := parsePorts(e.ports)
	if err != nil || f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	pidFile := e.pidFile
	if pidFile == "" {
		pidFile = conf.Echo.PIDFile
	}
	if pidFile != "" {
		lock := flock.New(pidFile)
		locked, err := lock.TryLock()
		if err != nil {
			log.WithError(err).Error("locking pid file")
			return subcommands.ExitFailure
		}
		if !locked {
			log.WithField("pid_file", pidFile).Error("another echo instance is running")
			return subcommands.ExitFailure
		}
		defer lock.Unlock()
	}

	tr, release, err := newTransport(conf, log)
	if err != nil {
		log.WithError(err).Error("opening backend")
		return subcommands.ExitFailure
	}
	defer release()

	var eps []*udp.Endpoint
	defer func() {
		for _, ep := range eps {
			ep.Close()
		}
	}()
	for _, port := range ports {
		checkPrivilegedPort(conf, log, port)
		ep, err := tr.Open()
		if err != nil {
			log.WithError(err).Error("opening endpoint")
			return subcommands.ExitFailure
		}
		eps = append(eps, ep)
		if err := bind(ep, port, e.ip); err != nil {
			log.WithError(err).Error("binding endpoint")
			return subcommands.ExitFailure
		}
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("notifying systemd")
	} else if sent {
		log.Debug("readiness sent to systemd")
	}

	if err := ServeEcho(ctx, log, eps...); err != nil {
		log.WithError(err).Error("echo failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// ServeEcho answers every datagram received on eps with the same payload,
// sent back to its sender, until ctx is done. The endpoints must be bound.
// They are closed when ServeEcho returns.
func ServeEcho(ctx context.Context, log logrus.FieldLogger, eps ...*udp.Endpoint) error {
	locals := make([]udp.Address, len(eps))
	for i, ep := range eps {
		local, err := ep.LocalAddr()
		if err != nil {
			for _, ep := range eps {
				ep.Close()
			}
			return fmt.Errorf("%v: %w", ep, err)
		}
		locals[i] = local
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range eps {
		ep := ep
		elog := log.WithField("local", locals[i])
		elog.Info("echo serving")

		stop := closeOnDone(gctx, ep)
		g.Go(func() error {
			defer ep.Close()
			defer stop()
			buf := make([]byte, udp.MaxDatagramSize)
			for {
				n, from, err := ep.Receive(buf)
				if err != nil {
					if stopped(gctx, err) {
						return nil
					}
					return err
				}
				if err := ep.SendTo(buf[:n], from); err != nil {
					// The peer may be gone; keep serving others.
					elog.WithError(err).WithField("remote", from).Warn("echo reply failed")
					continue
				}
				elog.WithFields(logrus.Fields{"remote": from, "bytes": n}).Debug("echoed")
			}
		})
	}
	return g.Wait()
}

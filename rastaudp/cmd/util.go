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

// Package cmd holds the rastaudp subcommands.
//
// Every command receives the *config.Config and the *logrus.Logger as its
// first two Execute arguments.
package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/moby/sys/capability"
	"github.com/sirupsen/logrus"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
	"github.com/FlorianFrank/rasta-protocol/rastaudp/backend"
	"github.com/FlorianFrank/rasta-protocol/rastaudp/config"
)

// unpack extracts the arguments passed to every command.
func unpack(args []any) (*config.Config, *logrus.Logger) {
	return args[0].(*config.Config), args[1].(*logrus.Logger)
}

// newTransport opens the configured backend.
func newTransport(conf *config.Config, log *logrus.Logger) (*udp.Transport, func(), error) {
	d, release, err := backend.Open(conf, log)
	if err != nil {
		return nil, nil, err
	}
	return udp.New(d, udp.WithLogger(log)), release, nil
}

// bind binds e to port, on every interface if ip is empty.
func bind(e *udp.Endpoint, port uint16, ip string) error {
	if ip == "" {
		return e.Bind(port)
	}
	return e.BindToInterface(port, ip)
}

// closeOnDone closes e when ctx is done, waking a blocked Receive. The
// returned function stops the watcher.
func closeOnDone(ctx context.Context, e *udp.Endpoint) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// stopped reports whether err is the ReceiveFailed caused by closing the
// endpoint on shutdown.
func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, udp.ErrClosed)
}

// parsePort parses a decimal UDP port.
func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(p), nil
}

// parsePorts parses a comma separated port list.
func parsePorts(s string) ([]uint16, error) {
	var ports []uint16
	for _, f := range strings.Split(s, ",") {
		p, err := parsePort(f)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// formatPayload renders a datagram for display.
func formatPayload(b []byte, asHex bool) string {
	if asHex {
		return hex.EncodeToString(b)
	}
	return strconv.Quote(string(b))
}

// checkPrivilegedPort warns when binding a host port below 1024 without
// CAP_NET_BIND_SERVICE, which makes the bind fail with permission denied.
func checkPrivilegedPort(conf *config.Config, log logrus.FieldLogger, port uint16) {
	if port == 0 || port >= 1024 || backend.Name(conf) != config.BackendHostsock {
		return
	}
	caps, err := capability.NewPid2(0)
	if err == nil {
		err = caps.Load()
	}
	if err != nil {
		log.WithError(err).Debug("cannot read process capabilities")
		return
	}
	if !caps.Get(capability.EFFECTIVE, capability.CAP_NET_BIND_SERVICE) {
		log.WithField("port", port).Warn("binding a privileged port without CAP_NET_BIND_SERVICE")
	}
}

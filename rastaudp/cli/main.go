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

// Package cli is the main entrypoint for rastaudp.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"github.com/FlorianFrank/rasta-protocol/rastaudp/backend"
	"github.com/FlorianFrank/rasta-protocol/rastaudp/cmd"
	"github.com/FlorianFrank/rasta-protocol/rastaudp/config"
)

// Main is the main entrypoint.
func Main() {
	// Help and flags commands are generated automatically.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	const transportGroup = "transport"
	subcommands.Register(new(cmd.Listen), transportGroup)
	subcommands.Register(new(cmd.Send), transportGroup)
	subcommands.Register(new(cmd.Echo), transportGroup)
	subcommands.Register(new(cmd.PingCmd), transportGroup)
	subcommands.Register(new(cmd.Ifaces), transportGroup)

	configPath := flag.String("config", "", "TOML configuration file")
	conf := config.Default()
	conf.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *configPath != "" {
		fileConf, err := config.Load(*configPath)
		if err != nil {
			fatalf("%v", err)
		}
		// Flags given on the command line take precedence over the file.
		fileConf.OverrideFrom(conf, flag.CommandLine)
		conf = fileConf
	}
	if err := conf.Validate(); err != nil {
		fatalf("invalid configuration: %v", err)
	}

	log := conf.NewLogger()
	log.WithField("backend", backend.Name(conf)).Debug("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	status := subcommands.Execute(ctx, conf, log)
	stop()
	os.Exit(int(status))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rastaudp: "+format+"\n", args...)
	os.Exit(128)
}

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

// Package config holds the configuration of the rastaudp tool.
//
// Values are read from an optional TOML file and then overridden by
// command line flags.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Backends.
const (
	BackendHostsock = "hostsock"
	BackendNetstack = "netstack"
)

// Config is the tool configuration.
type Config struct {
	// Backend selects the datagram backend. Empty means the build default.
	Backend string `toml:"backend"`

	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	Netstack Netstack `toml:"netstack"`
	Echo     Echo     `toml:"echo"`
}

// Netstack configures the in-process stack backend.
type Netstack struct {
	// Addresses are extra IPv4 prefixes assigned to the stack.
	Addresses []string `toml:"addresses"`
}

// Echo configures the echo service.
type Echo struct {
	// PIDFile, if set, is locked for the lifetime of the service so that
	// only one instance runs.
	PIDFile string `toml:"pid_file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path over the defaults. Keys not known to Config are an error.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return c, nil
}

// RegisterFlags registers flags overriding c's fields. Flag defaults are
// the current values of c.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.Backend, "backend", c.Backend, "datagram backend: hostsock or netstack (default: build default)")
	f.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: panic, fatal, error, warn, info, debug or trace")
	f.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	f.Func("netstack-address", "extra IPv4 prefix for the netstack backend, may be repeated", func(s string) error {
		c.Netstack.Addresses = append(c.Netstack.Addresses, s)
		return nil
	})
}

// OverrideFrom copies into c the fields of flags whose flag was set on f.
// Netstack addresses given as flags are appended to those of c.
func (c *Config) OverrideFrom(flags *Config, f *flag.FlagSet) {
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "backend":
			c.Backend = flags.Backend
		case "log-level":
			c.LogLevel = flags.LogLevel
		case "log-format":
			c.LogFormat = flags.LogFormat
		case "netstack-address":
			c.Netstack.Addresses = append(c.Netstack.Addresses, flags.Netstack.Addresses...)
		}
	})
}

// Validate checks c for invalid values.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendHostsock, BackendNetstack:
	default:
		return fmt.Errorf("invalid backend %q", c.Backend)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// NewLogger returns a logger configured from c. Validate must have
// succeeded.
func (c *Config) NewLogger() *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		l.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

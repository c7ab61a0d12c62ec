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
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/FlorianFrank/rasta-protocol/pkg/udp"
)

// errNoReply is returned by a probe attempt that timed out.
var errNoReply = errors.New("no reply")

// PingOptions configures Ping.
type PingOptions struct {
	// Count is the number of probes.
	Count int

	// Timeout is how long one attempt waits for its reply.
	Timeout time.Duration

	// Retries is how many times an unanswered probe is resent.
	Retries uint64

	// Rate limits probes per second. Zero means no limit.
	Rate float64
}

// Ping sends Count probes from e to dst and waits for each to be echoed,
// returning the round trip times. e must be bound. Unanswered probes are
// resent with exponential backoff up to Retries times.
//
// Ping closes e before returning, to stop its receiver.
func Ping(ctx context.Context, log logrus.FieldLogger, e *udp.Endpoint, dst udp.Address, opts PingOptions) ([]time.Duration, error) {
	replies := make(chan []byte, 16)
	recvErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		buf := make([]byte, udp.MaxDatagramSize)
		for {
			n, from, err := e.Receive(buf)
			if err != nil {
				recvErr <- err
				return
			}
			if from != dst {
				log.WithField("remote", from).Debug("ignoring datagram from unexpected peer")
				continue
			}
			select {
			case replies <- append([]byte(nil), buf[:n]...):
			case <-done:
				return
			}
		}
	}()
	defer e.Close()

	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	var rtts []time.Duration
	for seq := 0; seq < opts.Count; seq++ {
		if err := lim.Wait(ctx); err != nil {
			return rtts, err
		}
		probe := []byte(fmt.Sprintf("PING %d", seq))
		var rtt time.Duration
		attempt := func() error {
			start := time.Now()
			if err := e.SendTo(probe, dst); err != nil {
				return err
			}
			timer := time.NewTimer(opts.Timeout)
			defer timer.Stop()
			for {
				select {
				case r := <-replies:
					if !bytes.Equal(r, probe) {
						// A late reply to an earlier attempt.
						continue
					}
					rtt = time.Since(start)
					return nil
				case err := <-recvErr:
					recvErr <- err
					return err
				case <-timer.C:
					log.WithField("seq", seq).Debug("probe timed out")
					return errNoReply
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = opts.Timeout / 4
		b.MaxElapsedTime = 0
		if err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, opts.Retries), ctx)); err != nil {
			return rtts, fmt.Errorf("probe %d: %w", seq, err)
		}
		log.WithFields(logrus.Fields{"seq": seq, "rtt": rtt}).Debug("probe answered")
		rtts = append(rtts, rtt)
	}
	return rtts, nil
}

// PingCmd implements subcommands.Command for the "ping" command.
type PingCmd struct {
	host    string
	port    uint
	bindIP  string
	opts    PingOptions
	retries uint
}

// Name implements subcommands.Command.Name.
func (*PingCmd) Name() string {
	return "ping"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PingCmd) Synopsis() string {
	return "measure round trips to a UDP echo service"
}

// Usage implements subcommands.Command.Usage.
func (*PingCmd) Usage() string {
	return `ping [flags] - send probes to an echo service and print round trip times.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PingCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.host, "host", "127.0.0.1", "echo service IPv4 address")
	f.UintVar(&p.port, "port", 9000, "echo service port")
	f.StringVar(&p.bindIP, "bind-ip", "", "send from the interface owning this IPv4 address")
	f.IntVar(&p.opts.Count, "count", 3, "number of probes")
	f.DurationVar(&p.opts.Timeout, "timeout", time.Second, "time to wait for each reply")
	f.UintVar(&p.retries, "retries", 2, "resends of an unanswered probe")
	f.Float64Var(&p.opts.Rate, "rate", 1, "probes per second, 0 for no limit")
}

// Execute implements subcommands.Command.Execute.
func (p *PingCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf, log := unpack(args)
	if f.NArg() != 0 || p.port == 0 || p.port > 0xffff || p.opts.Count < 1 || p.opts.Timeout <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	p.opts.Retries = uint64(p.retries)
	dst, err := udp.ResolveAddress(p.host, uint16(p.port))
	if err != nil {
		log.WithError(err).Error("invalid host")
		return subcommands.ExitUsageError
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
	// The receiver needs a bound endpoint before the first probe leaves.
	if err := bind(e, 0, p.bindIP); err != nil {
		e.Close()
		log.WithError(err).Error("binding endpoint")
		return subcommands.ExitFailure
	}

	rtts, err := Ping(ctx, log, e, dst, p.opts)
	for i, rtt := range rtts {
		fmt.Printf("%s seq=%d time=%v\n", dst, i, rtt)
	}
	if err != nil {
		log.WithError(err).Error("ping failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

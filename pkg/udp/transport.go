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

// Package udp is the datagram transport used by the protocol stack.
//
// A Transport wraps one Driver and hands out Endpoints. Every Endpoint
// follows the same life cycle regardless of backend:
//
//	Open --> Bind / BindToInterface / first Send --> Close
//
// Receive is the only operation that blocks. It has no timeout; Close
// from another goroutine makes it return a ReceiveFailed error.
//
// The transport adds no framing, retries or ordering. Every failure is
// reported synchronously as an *Error.
package udp

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Transport creates endpoints on one backend.
type Transport struct {
	driver Driver
	log    logrus.FieldLogger

	// ids numbers endpoints for log correlation.
	ids atomic.Uint64
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for endpoint life cycle events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Transport) {
		t.log = l
	}
}

// New returns a Transport backed by d.
func New(d Driver, opts ...Option) *Transport {
	t := &Transport{driver: d}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		t.log = l
	}
	t.log = t.log.WithField("backend", d.Name())
	return t
}

// Backend returns the name of the driver in use.
func (t *Transport) Backend() string {
	return t.driver.Name()
}

// Open allocates a new, unbound endpoint.
func (t *Transport) Open() (*Endpoint, error) {
	sock, err := t.driver.NewSocket()
	if err != nil {
		t.log.WithError(err).Warn("socket allocation failed")
		return nil, &Error{Kind: AllocationFailed, Op: "open", Err: err}
	}
	id := t.ids.Add(1)
	e := &Endpoint{
		sock: sock,
		id:   id,
		log:  t.log.WithField("endpoint", id),
	}
	e.log.Debug("endpoint opened")
	return e, nil
}

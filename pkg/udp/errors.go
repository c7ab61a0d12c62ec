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

package udp

import "errors"

// Kind classifies a transport failure.
type Kind int

// Failure kinds. Kind implements error so that errors.Is(err, BindFailed)
// matches any *Error of that kind.
const (
	// AllocationFailed means the host could not provide a new endpoint.
	AllocationFailed Kind = iota + 1

	// BindFailed means the port or interface is unavailable, already in
	// use, or the caller lacks permission.
	BindFailed

	// InvalidAddress means a dotted-decimal address string was malformed.
	// No backend operation was attempted.
	InvalidAddress

	// SendFailed means a datagram could not be transmitted.
	SendFailed

	// ReceiveFailed means a receive was aborted, by close or by a socket
	// level error.
	ReceiveFailed
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case AllocationFailed:
		return "allocation failed"
	case BindFailed:
		return "bind failed"
	case InvalidAddress:
		return "invalid address"
	case SendFailed:
		return "send failed"
	case ReceiveFailed:
		return "receive failed"
	default:
		return "unknown failure"
	}
}

// Error implements error.
func (k Kind) Error() string {
	return "udp: " + k.String()
}

// Causes wrapped by *Error.
var (
	ErrClosed          = errors.New("udp: endpoint closed")
	ErrNotBound        = errors.New("udp: endpoint not bound")
	ErrAlreadyBound    = errors.New("udp: endpoint already bound")
	ErrMessageTooLarge = errors.New("udp: message exceeds maximum datagram size")
)

// ErrWouldBlock is returned unwrapped by TryReceive when no datagram is
// queued. It is not a failure.
var ErrWouldBlock = errors.New("udp: operation would block")

// Error is returned by every failing Endpoint and Transport operation.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation: "open", "bind", "send" or "receive".
	Op string

	// Addr is the address involved, if any, as given by the caller.
	Addr string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	s := "udp " + e.Op
	if e.Addr != "" {
		s += " " + e.Addr
	}
	s += ": " + e.Kind.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is e's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of err, or 0 if err is not a transport error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

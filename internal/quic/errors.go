// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransportErrorCode identifies a QUIC CONNECTION_CLOSE error code used by
// this core. RFC 9000 defines many more; we only mint the ones the header
// handler and loss detector can themselves raise.
type TransportErrorCode uint64

const (
	// VersionNegotiationError is raised when an Initial packet offers a
	// version we cannot negotiate.
	VersionNegotiationError TransportErrorCode = 0x1
	// ProtocolViolation is raised for a version mismatch outside of the
	// Initial/0-RTT/allow-all cases the handshake tolerates.
	ProtocolViolation TransportErrorCode = 0x0a
)

func (c TransportErrorCode) String() string {
	switch c {
	case VersionNegotiationError:
		return "VERSION_NEGOTIATION_ERROR"
	case ProtocolViolation:
		return "PROTOCOL_VIOLATION"
	default:
		return fmt.Sprintf("TransportErrorCode(0x%x)", uint64(c))
	}
}

// QuicError is surfaced on the wire as a CONNECTION_CLOSE. The Header
// Handler returns this when a packet cannot be processed and the connection
// must be torn down.
type QuicError struct {
	Code   TransportErrorCode
	Detail string
}

func (e *QuicError) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// quicErrorf builds a QuicError with a formatted detail, wrapped so a stack
// trace is captured at the point of failure.
func quicErrorf(code TransportErrorCode, format string, args ...any) error {
	return errors.WithStack(&QuicError{Code: code, Detail: fmt.Sprintf(format, args...)})
}

// TransientError is returned when a datagram should be silently dropped
// without affecting connection state. IGNORE_PACKET is the only kind this
// core produces.
type TransientError struct {
	Reason string
}

func (e *TransientError) Error() string {
	return "ignore packet: " + e.Reason
}

func ignorePacket(reason string) error {
	return &TransientError{Reason: reason}
}

// InternalInvariant reports a programmer error: state that this core's own
// bookkeeping guarantees should have made impossible (a double-inserted
// packet number, a packet type with no packet-number space). It is never
// expected to occur in a correct build. Where it is detected on the send
// path it is logged at Error level; nothing in this package aborts the
// connection in response to it.
type InternalInvariant struct {
	msg string
}

func (e *InternalInvariant) Error() string { return "internal invariant violation: " + e.msg }

func invariantf(format string, args ...any) error {
	return errors.WithStack(&InternalInvariant{msg: fmt.Sprintf(format, args...)})
}

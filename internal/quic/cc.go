// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "time"

// ccLimit describes whether congestion control currently permits sending.
// Mirrors the teacher's conn_send.go usage (c.loss.sendLimit(now)).
type ccLimit int

const (
	// ccOK: sending is unrestricted.
	ccOK ccLimit = iota
	// ccLimited: only ACK-only packets may be sent.
	ccLimited
	// ccBlocked: anti-amplification or congestion control blocks all
	// sending, including ACKs.
	ccBlocked
)

// CongestionController is the sibling collaborator the loss detector emits
// packets-lost/packet-acked signals to (spec.md §1 Non-goals: "no
// specification of a concrete congestion controller"). This core only
// defines the narrow interface it calls through; a real cubic/reno/BBR
// implementation is out of scope.
//
// A production implementation of this interface is exactly where
// github.com/prometheus/client_golang counters for congestion window size,
// bytes in flight, and slow-start exits would be registered (see
// SPEC_FULL.md §3); this core does not implement one.
type CongestionController interface {
	// OnPacketSent is called once per packet registered with the loss
	// detector, whether or not it is ack-eliciting or in flight.
	OnPacketSent(now time.Time, sizeBytes int)
	// OnPacketAcked is called once per newly-acknowledged packet.
	OnPacketAcked(sizeBytes int)
	// OnPacketsLost is called once per detect_lost_packets invocation that
	// found at least one loss, with the total bytes newly declared lost.
	OnPacketsLost(sizeBytes int)
	// SetUnderutilized reports whether the congestion window went unused on
	// the most recent send attempt.
	SetUnderutilized(underutilized bool)
	// SendLimit reports whether sending is currently permitted, and if not,
	// the next time it might be.
	SendLimit(now time.Time) (limit ccLimit, next time.Time)
	// MaxSendSize returns the maximum size of the next outbound datagram.
	MaxSendSize() int
}

// nullCongestionController never limits sending; it is the default when a
// connection is constructed without an explicit CongestionController, which
// keeps the loss detector independently testable (spec.md's testable
// properties exercise the detector without requiring a congestion model).
type nullCongestionController struct{}

func (nullCongestionController) OnPacketSent(time.Time, int)         {}
func (nullCongestionController) OnPacketAcked(int)                   {}
func (nullCongestionController) OnPacketsLost(int)                   {}
func (nullCongestionController) SetUnderutilized(bool)                {}
func (nullCongestionController) SendLimit(now time.Time) (ccLimit, time.Time) {
	return ccOK, time.Time{}
}
func (nullCongestionController) MaxSendSize() int { return 1452 }

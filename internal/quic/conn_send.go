// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"time"
)

// maybeSend sends datagrams, if possible.
//
// If sending is blocked by pacing, it returns the next time
// a datagram may be sent.
//
// Adapted from the teacher's maybeSend: the concrete packetWriter/listener
// calls (c.w.startProtectedLongHeaderPacket, c.listener.sendDatagram, ...)
// are replaced with the PacketSink collaborator, since wire encoding and
// socket I/O are out of scope (spec.md §1). The per-space loop structure
// and the PTO-ping-filling rationale are kept as the teacher wrote them.
// Initial datagrams are not padded here.
func (c *Conn) maybeSend(now time.Time) (next time.Time) {
	nowMS := c.nowMS(now)

	// Assumption: The congestion window is not underutilized.
	// If congestion control, pacing, and anti-amplification all permit sending,
	// but we have no packet to send, then we will declare the window underutilized.
	cc := c.loss.cc
	cc.SetUnderutilized(false)

	wrote := false
	for space := InitialSpace; space < NumberSpaceCount; space++ {
		if c.Keys == nil || !c.hasKeys(space) {
			continue
		}
		limit, nextAt := cc.SendLimit(now)
		if limit == ccBlocked {
			// If anti-amplification blocks sending, then no packet can be sent.
			return nextAt
		}
		next = nextAt

		pnumMaxAcked := c.acks[space].largestSeen()
		pnum := c.loss.NextNumber(space)

		built, ackEliciting, isCrypto, sizeBytes := c.sink.BuildPacket(space, pnumMaxAcked, pnum, limit)

		// If this is a PTO probe and we haven't added an ack-eliciting frame yet,
		// add a PING to make this an ack-eliciting probe.
		//
		// Technically, there are separate PTO timers for each number space.
		// When a PTO timer expires, we MUST send an ack-eliciting packet in the
		// timer's space. We SHOULD send ack-eliciting packets in every other space
		// with in-flight data. (RFC 9002, section 6.2.4)
		//
		// What we actually do is send a single datagram containing an ack-eliciting packet
		// for every space for which we have keys.
		if c.loss.PTOExpired() && !ackEliciting && c.sink.ForcePing != nil {
			c.sink.ForcePing(space)
			built = true
			ackEliciting = true
		}

		if !built {
			continue
		}

		sent := &SentPacket{
			PacketNumber:   pnum,
			SentAtMS:       nowMS,
			SizeBytes:      sizeBytes,
			IsAckEliciting: ackEliciting,
			IsCrypto:       isCrypto,
			InFlight:       true,
		}
		if err := c.loss.OnPacketSent(nowMS, space, sent); err != nil {
			c.log.space(space).WithError(err).Error("BUG: duplicate packet number registered")
		}
		wrote = true
	}

	if wrote && c.sink.FlushDatagram != nil {
		c.sink.FlushDatagram()
	}
	return next
}

// hasKeys reports whether we currently have write keys for space. A
// production Conn derives this from the TLS collaborator's key schedule;
// this core only needs the boolean, so BuildPacket itself may also report
// built=false when no keys are available. hasKeys is a fast-path skip so
// spaces with no prospect of sending don't needlessly draw a packet number.
func (c *Conn) hasKeys(space NumberSpace) bool {
	switch space {
	case InitialSpace:
		return c.Keys.Initial != nil
	case HandshakeSpace:
		return c.Keys.Handshake != nil
	case AppDataSpace:
		return c.Keys.OneRTT != nil
	default:
		return false
	}
}

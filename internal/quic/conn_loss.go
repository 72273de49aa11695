// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// handleAckOrLoss deals with the final fate of a packet we sent:
// Either the peer acknowledges it, or we declare it lost.
//
// In order to handle packet loss, we must retain any information sent to the peer
// until the peer has acknowledged it.
//
// When information is acknowledged, we can discard it.
//
// When information is lost, we mark it for retransmission.
// See RFC 9000, Section 13.3 for a complete list of information which is retransmitted on loss.
// https://www.rfc-editor.org/rfc/rfc9000#section-13.3
//
// Adapted from the teacher's frame-buffer walk (which decoded a specific
// wire encoding of retained frames) to this core's narrower contract: frame
// wire encoding is out of scope (spec.md §1), so a sent packet's content is
// either "it was an ACK frame" (AckFrameLargestAcked set) or opaque
// retransmittable content (Frames), and only the ACK-frame case gets
// special handling here.
func (c *Conn) handleAckOrLoss(space NumberSpace, sent *SentPacket, fate packetFate) {
	if sent.AckFrameLargestAcked != nil {
		// Unlike most information, loss of an ACK frame does not trigger
		// retransmission. ACKs are sent in response to ack-eliciting packets,
		// and always contain the latest information available.
		//
		// Acknowledgement of an ACK frame may allow us to discard information
		// about older packets.
		if fate == packetAcked {
			c.acks[space].handleAck(*sent.AckFrameLargestAcked)
		}
		return
	}

	if fate == packetLost && sent.IsAckEliciting {
		c.RetransmitPacket(sent, space)
	}
}

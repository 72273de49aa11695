// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "time"

// PacketSink is the send-path collaborator this core drives but does not
// implement: UDP socket I/O, frame parsing/marshaling, and packet-writer
// wire encoding are all out of scope (spec.md §1). conn_send.go calls
// through this interface the way the teacher's maybeSend calls through
// c.w/c.listener; a concrete implementation owns the packetWriter and
// socket the teacher's Conn does.
type PacketSink struct {
	// BuildPacket asks the sink to marshal whatever frames are ready to
	// send in space into an outbound packet for pnum, given the
	// congestion/pacing limit and the largest PN we've acknowledged in this
	// space (used to size the PN encoding on the wire). It reports whether
	// a packet was actually produced, whether it is ack-eliciting, and
	// whether it carries CRYPTO data.
	BuildPacket func(space NumberSpace, pnumMaxAcked, pnum PacketNumber, limit ccLimit) (built bool, ackEliciting, isCrypto bool, sizeBytes int)
	// ForcePing asks the sink to ensure the in-progress packet for space is
	// ack-eliciting, by adding a PING frame if nothing else made it so.
	// Used to satisfy a PTO probe that found no retransmittable candidate
	// of its own (spec.md §4.2.7: "callers may inject PING frames instead").
	ForcePing func(space NumberSpace)
	// FlushDatagram hands a fully constructed datagram to the network.
	FlushDatagram func()
	// Retransmit is called when previously sent, non-ACK content must be
	// resent: either because detect_lost_packets declared it lost, or
	// because it was chosen as a PTO/crypto-RTO probe candidate.
	Retransmit func(space NumberSpace, p *SentPacket)
}

// packetFate is the terminal state a sent packet reaches: either the peer
// acknowledged it, or the loss detector gave up waiting (spec.md §3:
// "a PN appears in at most one sent_packets map at once, and is removed on
// ack or loss").
type packetFate int

const (
	packetAcked packetFate = iota
	packetLost
)

// ackTracker records, per space, the highest PN received from the peer and
// the highest "largest acknowledged" value among our own ACK frames that
// the peer has acknowledged. It keeps no ACK-range history, so nothing is
// discarded when one of our ACK-bearing packets is acknowledged. Grounded
// on the teacher's conn_loss.go.
type ackTracker struct {
	largestReceived         PacketNumber // highest PN we've seen, reported by largestSeen
	largestAckedByPeer      PacketNumber // highest "largest acked" value from our own ACK frames the peer has acked
}

func newAckTracker() *ackTracker {
	return &ackTracker{largestReceived: InvalidPacketNumber, largestAckedByPeer: InvalidPacketNumber}
}

// handleAck is called when a packet of ours carrying an ACK frame declaring
// "largest" is itself acknowledged by the peer.
func (t *ackTracker) handleAck(largest PacketNumber) {
	if t.largestAckedByPeer == InvalidPacketNumber || largest > t.largestAckedByPeer {
		t.largestAckedByPeer = largest
	}
}

// largestSeen reports the highest PN observed in this space, mirroring the
// teacher's c.acks[space].largestSeen() used to size PN encoding.
func (t *ackTracker) largestSeen() PacketNumber { return t.largestReceived }

func (t *ackTracker) recordReceived(pn PacketNumber) {
	if t.largestReceived == InvalidPacketNumber || pn > t.largestReceived {
		t.largestReceived = pn
	}
}

// Conn is the minimal connection-level glue between the Header Handler, the
// Loss Detector, and the PacketSink collaborator. It is deliberately thin:
// spec.md's Non-goals exclude "a full connection state machine", so Conn
// exists only to wire the pieces this spec does own together and to
// implement LossObserver the way the teacher's Conn implements the
// equivalent callbacks inline.
type Conn struct {
	Role   Role
	Keys   *ConnectionKeys
	Header *HeaderHandler
	loss   *LossDetector
	sink   PacketSink
	acks   [NumberSpaceCount]*ackTracker
	log    *entryLogger
}

// NewConn constructs a Conn wired to the given loss detector and sink.
func NewConn(role Role, keys *ConnectionKeys, loss *LossDetector, sink PacketSink, log *logrusLogger) *Conn {
	c := &Conn{
		Role:   role,
		Keys:   keys,
		loss:   loss,
		sink:   sink,
		log:    newEntryLogger(log),
		Header: NewHeaderHandler(role, log),
	}
	for i := range c.acks {
		c.acks[i] = newAckTracker()
	}
	return c
}

var _ LossObserver = (*Conn)(nil)

func (c *Conn) PacketAcked(p *SentPacket, space NumberSpace) {
	c.handleAckOrLoss(space, p, packetAcked)
}

func (c *Conn) PacketsLost(pkts []*SentPacket, space NumberSpace) {
	for _, p := range pkts {
		c.handleAckOrLoss(space, p, packetLost)
	}
}

func (c *Conn) RetransmitPacket(p *SentPacket, space NumberSpace) {
	if c.sink.Retransmit != nil {
		c.sink.Retransmit(space, p)
	}
}

func (c *Conn) PTOProbe() {
	c.log.log.Debug("pto alarm fired")
}

func (c *Conn) RetransmissionTimeoutVerified() {
	c.log.log.Debug("handshake retransmission timeout verified by subsequent ack")
}

// nowMS is a convenience the send path uses; production callers pass a real
// time.Time from their event loop the way the teacher's maybeSend does.
func (c *Conn) nowMS(now time.Time) uint64 {
	return uint64(now.UnixMilli())
}

// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "time"

// fakeClock is a manually driven Clock, in the spirit of the teacher's
// conn_test.go fake time source: tests advance it explicitly rather than
// sleeping real wall-clock time.
type fakeClock struct {
	nowMS uint64
}

func (c *fakeClock) NowMS() uint64 { return c.nowMS }

func (c *fakeClock) advance(ms uint64) { c.nowMS += ms }

// fakeAlarm replaces the production timerAlarm so tests can fire the loss
// detection alarm deterministically instead of waiting on a real timer.
type fakeAlarm struct {
	running    bool
	lastStart  uint64
	starts     []uint64
	resetCount int
	cb         AlarmCallback
}

func (a *fakeAlarm) Start(durationMS uint64) {
	a.running = true
	a.lastStart = durationMS
	a.starts = append(a.starts, durationMS)
}

func (a *fakeAlarm) Reset() {
	a.running = false
	a.resetCount++
}

func (a *fakeAlarm) IsRunning() bool { return a.running }

// fire invokes the armed callback as if durationMS had elapsed, the way the
// teacher's tests step a fake runtime's timer queue by hand.
func (a *fakeAlarm) fire(nowMS uint64) {
	a.running = false
	a.cb(nowMS)
}

// fakeObserver records every LossObserver callback for assertion, mirroring
// the teacher's pattern of a test Conn that appends to a slice of recorded
// events instead of acting on them.
type fakeObserver struct {
	acked        []*SentPacket
	lost         [][]*SentPacket
	retransmits  []*SentPacket
	ptoProbes    int
	rtoVerified  int
	ecnAcks      int
}

func (o *fakeObserver) PacketAcked(p *SentPacket, space NumberSpace) {
	o.acked = append(o.acked, p)
}

func (o *fakeObserver) PacketsLost(pkts []*SentPacket, space NumberSpace) {
	o.lost = append(o.lost, pkts)
}

func (o *fakeObserver) RetransmitPacket(p *SentPacket, space NumberSpace) {
	o.retransmits = append(o.retransmits, p)
}

func (o *fakeObserver) PTOProbe() { o.ptoProbes++ }

func (o *fakeObserver) RetransmissionTimeoutVerified() { o.rtoVerified++ }

var _ LossObserver = (*fakeObserver)(nil)

// fakeCC is a no-op CongestionController, standing in for the sibling
// component spec.md explicitly places out of scope.
type fakeCC struct {
	sent, acked, lost int
}

func (c *fakeCC) OnPacketSent(now time.Time, sizeBytes int) { c.sent++ }
func (c *fakeCC) OnPacketAcked(sizeBytes int)                { c.acked++ }
func (c *fakeCC) OnPacketsLost(sizeBytes int)                { c.lost++ }
func (c *fakeCC) SetUnderutilized(bool)                      {}
func (c *fakeCC) SendLimit(now time.Time) (ccLimit, time.Time) {
	return ccOK, time.Time{}
}
func (c *fakeCC) MaxSendSize() int { return 1452 }

var _ CongestionController = (*fakeCC)(nil)

// fakeAck is a minimal AckFrame for driving OnAckReceived directly, the way
// a real ACK frame decoder would hand one in.
type fakeAck struct {
	largest PacketNumber
	delayMS uint64
	ranges  []AckRange
	space   NumberSpace
}

func (a *fakeAck) LargestAcked() PacketNumber  { return a.largest }
func (a *fakeAck) AckDelayMS() uint64          { return a.delayMS }
func (a *fakeAck) Ranges() []AckRange          { return a.ranges }
func (a *fakeAck) EncryptionLevel() NumberSpace { return a.space }

var _ AckFrame = (*fakeAck)(nil)

// newTestLossDetector builds a LossDetector wired to a fakeAlarm so tests
// can fire it by hand instead of waiting on time.AfterFunc.
func newTestLossDetector(cfg Config) (*LossDetector, *fakeObserver, *fakeAlarm) {
	obs := &fakeObserver{}
	ld := NewLossDetector(&fakeClock{}, &fakeCC{}, obs, nil, nil, cfg)
	fa := &fakeAlarm{cb: ld.onAlarmFired}
	ld.alarm = fa
	return ld, obs, fa
}

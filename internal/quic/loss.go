// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// LossObserver is the explicit observer interface the loss detector emits
// events through (design note, §9: "replace event-emitter dispatch with an
// explicit observer interface passed in at construction"). This preserves
// the ordering guarantee spec.md §5 requires: per ACK, all packet-acked
// events (in ACK-range order) are delivered before any packets-lost event
// for that same ACK.
type LossObserver interface {
	// PacketAcked is called once per newly-acknowledged packet.
	PacketAcked(p *SentPacket, space NumberSpace)
	// PacketsLost is called once per detect_lost_packets invocation that
	// found at least one loss, with every packet newly declared lost.
	PacketsLost(pkts []*SentPacket, space NumberSpace)
	// RetransmitPacket is called for each packet whose data is being
	// resent: crypto data on the handshake-RTO path, or a PTO probe
	// candidate.
	RetransmitPacket(p *SentPacket, space NumberSpace)
	// PTOProbe is called once when the PTO alarm fires, before any
	// RetransmitPacket calls for that firing. If fewer than two
	// retransmittable candidates exist, the observer may inject PING
	// frames of its own to fill the probe (spec.md §4.2.7).
	PTOProbe()
	// RetransmissionTimeoutVerified is called the first time an ACK
	// arrives carrying ack-eliciting progress while a handshake-RTO-driven
	// crypto retransmission was outstanding, confirming the RTO was not
	// spurious.
	RetransmissionTimeoutVerified()
}

// Config holds the loss detector's tunable constants (spec.md §4.2.1),
// overridable at construction and defaulting to the spec's values. This is
// the core's only configuration surface (§1: file/env/CLI configuration is
// out of scope).
type Config struct {
	// PacketThreshold is the reordering packet-threshold (default 3).
	PacketThreshold PacketNumber
	// TimeThresholdNumerator/Denominator express the reordering time
	// threshold as a fraction of RTT (default 9/8).
	TimeThresholdNumerator   uint64
	TimeThresholdDenominator uint64
	// GranularityMS floors the time-threshold loss delay (default 50ms).
	GranularityMS uint64
	// MaxAckDelayMS seeds the RTT estimator's max_ack_delay (default
	// 25ms; see spec.md §9 open question 2).
	MaxAckDelayMS uint64
}

// DefaultConfig returns the spec's constants (§4.2.1).
func DefaultConfig() Config {
	return Config{
		PacketThreshold:          3,
		TimeThresholdNumerator:   9,
		TimeThresholdDenominator: 8,
		GranularityMS:            50,
		MaxAckDelayMS:            defaultMaxAckDelay,
	}
}

// LossDetector is the retransmission/loss state machine of spec.md §4.2: it
// owns the three packet-number spaces and the single connection-wide
// loss-detection alarm.
type LossDetector struct {
	cfg Config

	spaces [NumberSpaceCount]*PacketNumberSpace
	rtt    *rttEstimator

	cc       CongestionController
	observer LossObserver
	clock    Clock
	alarm    Alarm
	log      *entryLogger
	metrics  *Metrics

	cryptoCount uint32
	ptoCount    uint32

	timeOfLastSentAckElicitingMS uint64
	timeOfLastSentCryptoMS       uint64

	ackElicitingOutstanding uint32
	cryptoOutstanding       uint32

	// ptoExpired is read by the connection's send path (conn_send.go) to
	// decide whether a PING must be forced into the next outbound packet,
	// mirroring the teacher's c.loss.ptoExpired field.
	ptoExpired bool
}

// NewLossDetector constructs a LossDetector. log and metrics may be nil.
func NewLossDetector(clock Clock, cc CongestionController, observer LossObserver, log *logrusLogger, metrics *Metrics, cfg Config) *LossDetector {
	if cc == nil {
		cc = nullCongestionController{}
	}
	ld := &LossDetector{
		cfg:      cfg,
		rtt:      newRTTEstimator(),
		cc:       cc,
		observer: observer,
		clock:    clock,
		log:      newEntryLogger(log),
		metrics:  metrics,
	}
	if cfg.MaxAckDelayMS != 0 {
		ld.rtt.maxAckDelay = cfg.MaxAckDelayMS
	}
	for i := range ld.spaces {
		ld.spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	ld.alarm = newTimerAlarm(clock, ld.onAlarmFired)
	return ld
}

// NextNumber returns the next packet number to use when sending in space,
// and advances the space's sequence counter.
func (ld *LossDetector) NextNumber(space NumberSpace) PacketNumber {
	ps := ld.spaces[space]
	pn := ps.nextToSend
	ps.nextToSend++
	return pn
}

// PTOExpired reports whether the most recent alarm firing was a PTO that
// has not yet been satisfied by a subsequent packet send; conn_send.go uses
// this to force a PING into the next outbound ack-eliciting packet.
func (ld *LossDetector) PTOExpired() bool { return ld.ptoExpired }

// OnPacketSent implements spec.md §4.2.2.
func (ld *LossDetector) OnPacketSent(now uint64, space NumberSpace, p *SentPacket) error {
	ps := ld.spaces[space]
	if err := ps.insert(p); err != nil {
		ld.log.packet(space, p.PacketNumber).WithError(err).Error("duplicate packet number registered")
		return err
	}
	if p.IsCrypto {
		ld.cryptoOutstanding++
		ld.timeOfLastSentCryptoMS = now
	}
	if p.IsAckEliciting {
		ld.ackElicitingOutstanding++
		ld.timeOfLastSentAckElicitingMS = now
		ld.ptoExpired = false
	}
	ld.cc.OnPacketSent(msToTime(now), p.SizeBytes)
	ld.setLossDetectionAlarm(now)
	return nil
}

// OnAckReceived implements spec.md §4.2.3.
func (ld *LossDetector) OnAckReceived(now uint64, ack AckFrame) error {
	space := ack.EncryptionLevel()
	ps := ld.spaces[space]

	if ps.largestAcked == InvalidPacketNumber || ack.LargestAcked() > ps.largestAcked {
		ps.largestAcked = ack.LargestAcked()
	}

	// RTT update: only if the sent packet with PN = ack.largest is still
	// tracked in this space AND was ack-eliciting. A duplicate ACK for an
	// already-removed packet must not corrupt RTT.
	if sp, ok := ps.sent[ack.LargestAcked()]; ok && sp.IsAckEliciting {
		ld.rtt.update(sp.SentAtMS, now, ack.AckDelayMS())
		ld.metrics.setSmoothedRTT(ld.rtt.smoothedRTT)
	}

	ackElicitingProgress := false
	for _, r := range ack.Ranges() {
		for pn := r.Smallest; pn <= r.Largest; pn++ {
			sp, ok := ps.sent[pn]
			if !ok {
				continue
			}
			if sp.IsAckEliciting {
				ackElicitingProgress = true
			}
			ld.onPacketAcked(now, space, sp)
		}
	}

	ld.detectLostPackets(now, space)

	// spec.md §9 open question 3: pto_count resets only on ack-eliciting
	// progress, not on every ACK (the draft behavior, preferred over the
	// source's unconditional reset).
	if ackElicitingProgress {
		ld.ptoCount = 0
	}
	// crypto_count resets on every ACK per §4.2.3's main text; if a
	// handshake-RTO retransmission was outstanding and this ACK acknowledged
	// ack-eliciting data, the RTO is confirmed non-spurious.
	if ld.cryptoCount > 0 && ackElicitingProgress {
		ld.observer.RetransmissionTimeoutVerified()
	}
	ld.cryptoCount = 0

	if ecn, ok := ld.observer.(EcnObserver); ok {
		ecn.EcnAck(ack)
	}

	ld.setLossDetectionAlarm(now)
	return nil
}

// onPacketAcked implements spec.md §4.2.4.
func (ld *LossDetector) onPacketAcked(now uint64, space NumberSpace, p *SentPacket) {
	ld.spaces[space].remove(p.PacketNumber)
	if p.IsAckEliciting {
		ld.ackElicitingOutstanding--
	}
	if p.IsCrypto {
		ld.cryptoOutstanding--
	}
	ld.cc.OnPacketAcked(p.SizeBytes)
	ld.metrics.ackedPacket(space)
	ld.log.packet(space, p.PacketNumber).Debug("packet acked")
	ld.observer.PacketAcked(p, space)
}

// detectLostPackets implements spec.md §4.2.5.
func (ld *LossDetector) detectLostPackets(now uint64, space NumberSpace) {
	ps := ld.spaces[space]
	ps.clearLossTime()

	maxRTT := ld.rtt.latestRTT
	if ld.rtt.smoothedRTT > maxRTT {
		maxRTT = ld.rtt.smoothedRTT
	}
	lossDelay := maxRTT * ld.cfg.TimeThresholdNumerator / ld.cfg.TimeThresholdDenominator
	if lossDelay < ld.cfg.GranularityMS {
		lossDelay = ld.cfg.GranularityMS
	}

	var lost []*SentPacket
	lostBytes := 0
	for _, p := range ps.ascending() {
		if p.PacketNumber > ps.largestAcked {
			continue
		}
		lostByTime := now-p.SentAtMS >= lossDelay
		lostByThreshold := int64(p.PacketNumber) <= int64(ps.largestAcked)-int64(ld.cfg.PacketThreshold)
		if lostByTime || lostByThreshold {
			lost = append(lost, p)
			lostBytes += p.SizeBytes
			continue
		}
		ps.updateLossTime(p.SentAtMS + lossDelay)
	}

	for _, p := range lost {
		ps.remove(p.PacketNumber)
		if p.IsAckEliciting {
			ld.ackElicitingOutstanding--
		}
		if p.IsCrypto {
			ld.cryptoOutstanding--
		}
	}

	if len(lost) > 0 {
		ld.cc.OnPacketsLost(lostBytes)
		ld.metrics.lostPackets(space, len(lost))
		ld.log.space(space).WithField("count", len(lost)).Warn("packets lost")
		ld.observer.PacketsLost(lost, space)
	}
}

// earliestLossTime implements spec.md §4.2.8.
func (ld *LossDetector) earliestLossTime() (ms uint64, space NumberSpace, ok bool) {
	for i, ps := range ld.spaces {
		if !ps.lossTimeSet {
			continue
		}
		if !ok || ps.lossTimeMS < ms {
			ms = ps.lossTimeMS
			space = NumberSpace(i)
			ok = true
		}
	}
	if !ok {
		return 0, InitialSpace, false
	}
	return ms, space, true
}

// setLossDetectionAlarm implements spec.md §4.2.6. Re-arming cancels and
// reschedules atomically (design note, §9): Start always supersedes any
// prior schedule, so this never needs to special-case "already running".
func (ld *LossDetector) setLossDetectionAlarm(now uint64) {
	if ld.ackElicitingOutstanding == 0 {
		ld.alarm.Reset()
		return
	}

	var fireAtMS uint64
	switch {
	case ld.cryptoOutstanding > 0:
		base := 2*ld.rtt.smoothedOrInitial() + ld.rtt.maxAckDelay
		if base < ld.cfg.GranularityMS {
			base = ld.cfg.GranularityMS
		}
		duration := base << ld.cryptoCount
		fireAtMS = ld.timeOfLastSentCryptoMS + duration

	default:
		if earliest, _, ok := ld.earliestLossTime(); ok {
			fireAtMS = earliest
			break
		}
		base := ld.rtt.smoothedOrInitial() + 4*ld.rtt.rttVar + ld.rtt.maxAckDelay
		if base < ld.cfg.GranularityMS {
			base = ld.cfg.GranularityMS
		}
		duration := base << ld.ptoCount
		fireAtMS = ld.timeOfLastSentAckElicitingMS + duration
	}

	var relative uint64
	if fireAtMS > now {
		relative = fireAtMS - now
	}
	ld.alarm.Start(relative)
}

// onAlarmFired adapts the Alarm callback signature to onLossDetectionAlarm.
func (ld *LossDetector) onAlarmFired(nowMS uint64) {
	ld.onLossDetectionAlarm(nowMS)
}

// onLossDetectionAlarm implements spec.md §4.2.7.
func (ld *LossDetector) onLossDetectionAlarm(now uint64) {
	_, earliestSpace, hasLossTime := ld.earliestLossTime()

	switch {
	case ld.cryptoOutstanding > 0:
		for i := range ld.spaces {
			for _, p := range ld.spaces[i].ascending() {
				if p.IsCrypto {
					ld.retransmit(NumberSpace(i), p)
				}
			}
		}
		ld.cryptoCount++
		ld.metrics.cryptoRetransmission()

	case hasLossTime:
		ld.detectLostPackets(now, earliestSpace)

	default:
		ld.ptoExpired = true
		ld.metrics.ptoFire()
		ld.observer.PTOProbe()
		sent := 0
		for _, space := range [...]NumberSpace{InitialSpace, HandshakeSpace, AppDataSpace} {
			for _, p := range ld.spaces[space].ascending() {
				if sent >= 2 {
					break
				}
				if !p.IsAckEliciting {
					continue
				}
				ld.retransmit(space, p)
				sent++
			}
			if sent >= 2 {
				break
			}
		}
		ld.ptoCount++
	}

	ld.setLossDetectionAlarm(now)
}

func (ld *LossDetector) retransmit(space NumberSpace, p *SentPacket) {
	ld.log.packet(space, p.PacketNumber).Debug("retransmitting")
	ld.observer.RetransmitPacket(p, space)
}

// Reset implements spec.md §5's teardown behavior: cancels the alarm and
// clears all sent_packets maps and counters.
func (ld *LossDetector) Reset() {
	for i := range ld.spaces {
		ld.spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	ld.ackElicitingOutstanding = 0
	ld.cryptoOutstanding = 0
	ld.cryptoCount = 0
	ld.ptoCount = 0
	ld.ptoExpired = false
	ld.alarm.Reset()
}

// AckElicitingOutstanding exposes the connection-level counter for testing
// invariant 2/3 (spec.md §8).
func (ld *LossDetector) AckElicitingOutstanding() uint32 { return ld.ackElicitingOutstanding }

// AlarmRunning exposes whether the loss-detection alarm is armed, for
// testing invariant 3 (spec.md §8).
func (ld *LossDetector) AlarmRunning() bool { return ld.alarm.IsRunning() }

// SmoothedRTT exposes the current smoothed RTT estimate in milliseconds.
func (ld *LossDetector) SmoothedRTT() uint64 { return ld.rtt.smoothedRTT }

// Tracked reports whether pn is currently tracked as sent-and-unacked in
// space, for testing invariant 1 (spec.md §8).
func (ld *LossDetector) Tracked(space NumberSpace, pn PacketNumber) bool {
	_, ok := ld.spaces[space].sent[pn]
	return ok
}

// LossTimeSet reports whether space currently has a pending time-threshold
// loss deadline armed, and its value, for testing scenarios S2/S3 (spec.md
// §8).
func (ld *LossDetector) LossTimeSet(space NumberSpace) (ms uint64, ok bool) {
	ps := ld.spaces[space]
	return ps.lossTimeMS, ps.lossTimeSet
}

// CryptoCount exposes the handshake-RTO retransmission counter for testing
// scenario S4 (spec.md §8).
func (ld *LossDetector) CryptoCount() uint32 { return ld.cryptoCount }

// PTOCount exposes the PTO counter for testing scenario S5 (spec.md §8).
func (ld *LossDetector) PTOCount() uint32 { return ld.ptoCount }

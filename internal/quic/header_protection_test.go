// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "testing"

// fakePNAEAD is a no-op header-protection provider: it returns masked
// unchanged, so tests can place a plaintext first header byte and truncated
// packet number directly in the datagram without computing a real
// header-protection mask.
type fakePNAEAD struct{}

func (fakePNAEAD) InitialPNDecrypt(dcid, sample, masked []byte) ([]byte, error) {
	return masked, nil
}
func (fakePNAEAD) HandshakePNDecrypt(sample, masked []byte) ([]byte, error) { return masked, nil }
func (fakePNAEAD) ZeroRTTPNDecrypt(sample, masked []byte) ([]byte, error)   { return masked, nil }
func (fakePNAEAD) OneRTTPNDecrypt(sample, masked []byte) ([]byte, error)    { return masked, nil }

var _ AEAD = fakePNAEAD{}

func alwaysSupported(uint32) bool { return true }

// shortHeaderDatagram builds a minimal raw datagram long enough for the
// header-protection sample. firstByte is the still-masked first header byte
// (its low 2 bits select the PN length per §6.3); pn holds the truncated PN
// bytes, placed starting at offset 1.
func shortHeaderDatagram(firstByte byte, pn ...byte) []byte {
	raw := make([]byte, 1+4+headerProtectionSampleLen)
	raw[0] = firstByte
	copy(raw[1:], pn)
	return raw
}

// TestHeaderHandlerSpinBitOnlyOnNewHigh exercises scenario S6: the spin bit
// only updates on a new-highest short-header packet number, never on an
// out-of-order older one.
func TestHeaderHandlerSpinBitOnlyOnNewHigh(t *testing.T) {
	hh := NewHeaderHandler(RoleServer, nil)
	var spaces [NumberSpaceCount]*PacketNumberSpace
	for i := range spaces {
		spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	keys := &ConnectionKeys{OneRTT: fakePNAEAD{}}

	// PN 1, spin=true: new high, server mirrors it.
	h1 := &Header{Type: PacketTypeShort, PNOffset: 1, SpinBit: true}
	if err := hh.Handle(shortHeaderDatagram(0, 1), h1, keys, spaces, HandshakeConfirmed, alwaysSupported); err != nil {
		t.Fatalf("Handle(PN 1): %v", err)
	}
	if h1.PacketNumber != 1 {
		t.Fatalf("PacketNumber = %d, want 1", h1.PacketNumber)
	}
	if !hh.Spin.Bit {
		t.Error("server should mirror spin=true on a new-highest packet")
	}

	// PN 0 arrives late (out of order, lower than the high-water mark):
	// must not change the observed spin bit even though its SpinBit differs.
	h0 := &Header{Type: PacketTypeShort, PNOffset: 1, SpinBit: false}
	if err := hh.Handle(shortHeaderDatagram(0, 0), h0, keys, spaces, HandshakeConfirmed, alwaysSupported); err != nil {
		t.Fatalf("Handle(PN 0): %v", err)
	}
	if !hh.Spin.Bit {
		t.Error("an out-of-order older packet must not change the observed spin bit")
	}

	// PN 2, spin=false: new high again, spin flips to mirror it.
	h2 := &Header{Type: PacketTypeShort, PNOffset: 1, SpinBit: false}
	if err := hh.Handle(shortHeaderDatagram(0, 2), h2, keys, spaces, HandshakeConfirmed, alwaysSupported); err != nil {
		t.Fatalf("Handle(PN 2): %v", err)
	}
	if hh.Spin.Bit {
		t.Error("server should mirror spin=false on the next new-highest packet")
	}
}

func TestHeaderHandlerClientInvertsSpin(t *testing.T) {
	hh := NewHeaderHandler(RoleClient, nil)
	var spaces [NumberSpaceCount]*PacketNumberSpace
	for i := range spaces {
		spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	keys := &ConnectionKeys{OneRTT: fakePNAEAD{}}

	h := &Header{Type: PacketTypeShort, PNOffset: 1, SpinBit: true}
	if err := hh.Handle(shortHeaderDatagram(0, 1), h, keys, spaces, HandshakeConfirmed, alwaysSupported); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if hh.Spin.Bit {
		t.Error("a client should invert the received spin bit")
	}
}

func TestHeaderHandlerLongHeaderSubtractsPNLength(t *testing.T) {
	hh := NewHeaderHandler(RoleServer, nil)
	var spaces [NumberSpaceCount]*PacketNumberSpace
	for i := range spaces {
		spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	keys := &ConnectionKeys{Initial: fakePNAEAD{}}

	// firstByte's low 2 bits are 0, selecting a 1-byte PN length.
	raw := shortHeaderDatagram(0xc0, 7)
	h := &Header{Type: PacketTypeInitial, PNOffset: 1, PayloadLength: 100, DestConnID: []byte{1, 2, 3, 4}}
	if err := hh.Handle(raw, h, keys, spaces, HandshakeInitial, alwaysSupported); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if h.PacketNumber != 7 {
		t.Fatalf("PacketNumber = %d, want 7", h.PacketNumber)
	}
	if h.PayloadLength != 99 {
		t.Errorf("PayloadLength = %d, want 99 (100 - 1-byte PN)", h.PayloadLength)
	}
}

// TestHeaderHandlerDecodesMultiBytePNLength drives a 2-byte truncated packet
// number through the full Handle pipeline, exercising §4.1 step 3's
// first-header-byte unmask (the low 2 bits select PN length 1-4) rather than
// the 1-byte case every other test in this file happens to use.
func TestHeaderHandlerDecodesMultiBytePNLength(t *testing.T) {
	hh := NewHeaderHandler(RoleServer, nil)
	var spaces [NumberSpaceCount]*PacketNumberSpace
	for i := range spaces {
		spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	keys := &ConnectionKeys{Initial: fakePNAEAD{}}

	// firstByte's low 2 bits are 01, selecting a 2-byte PN length; the PN
	// bytes 0x00, 0x07 decode to truncated value 7.
	raw := shortHeaderDatagram(0xc1, 0x00, 0x07)
	h := &Header{Type: PacketTypeInitial, PNOffset: 1, PayloadLength: 100, DestConnID: []byte{1, 2, 3, 4}}
	if err := hh.Handle(raw, h, keys, spaces, HandshakeInitial, alwaysSupported); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if h.PacketNumber != 7 {
		t.Fatalf("PacketNumber = %d, want 7", h.PacketNumber)
	}
	if h.PayloadLength != 98 {
		t.Errorf("PayloadLength = %d, want 98 (100 - 2-byte PN)", h.PayloadLength)
	}
}

// TestHeaderHandlerRetrySkipsPNProcessing covers spec.md §9 open question 4:
// Retry packets carry no protected packet number and must not consume one
// or touch any packet-number space.
func TestHeaderHandlerRetrySkipsPNProcessing(t *testing.T) {
	hh := NewHeaderHandler(RoleServer, nil)
	var spaces [NumberSpaceCount]*PacketNumberSpace
	for i := range spaces {
		spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	keys := &ConnectionKeys{}

	h := &Header{Type: PacketTypeRetry}
	if err := hh.Handle(shortHeaderDatagram(0, 0), h, keys, spaces, HandshakeConfirmed, alwaysSupported); err != nil {
		t.Fatalf("Handle(Retry): %v", err)
	}
	if h.PacketNumber != 0 {
		t.Errorf("PacketNumber = %d, want 0 (Retry must not decode a PN)", h.PacketNumber)
	}
	for i, ps := range spaces {
		if ps.count() != 0 || ps.highestReceived != InvalidPacketNumber {
			t.Errorf("space %d touched by Retry handling, want untouched", i)
		}
	}
}

// TestHeaderHandlerVersionNegotiationSkipsPNProcessing covers spec.md §9
// open question 4: Version Negotiation packets bypass the whole pipeline.
func TestHeaderHandlerVersionNegotiationSkipsPNProcessing(t *testing.T) {
	hh := NewHeaderHandler(RoleServer, nil)
	var spaces [NumberSpaceCount]*PacketNumberSpace
	for i := range spaces {
		spaces[i] = NewPacketNumberSpace(NumberSpace(i))
	}
	keys := &ConnectionKeys{}

	h := &Header{Type: PacketTypeVersionNegotiation, SupportedVersions: []uint32{1, 2}}
	if err := hh.Handle(nil, h, keys, spaces, HandshakeInitial, alwaysSupported); err != nil {
		t.Fatalf("Handle(VersionNegotiation): %v", err)
	}
	if h.PacketNumber != 0 {
		t.Errorf("PacketNumber = %d, want 0 (VersionNegotiation must not decode a PN)", h.PacketNumber)
	}
	for i, ps := range spaces {
		if ps.count() != 0 || ps.highestReceived != InvalidPacketNumber {
			t.Errorf("space %d touched by VersionNegotiation handling, want untouched", i)
		}
	}
}

func TestVersionGateRejectsUnsupportedInitial(t *testing.T) {
	h := &Header{Type: PacketTypeInitial, Version: 0xdeadbeef}
	err := versionGate(RoleServer, h, HandshakeInitial, false)
	if err == nil {
		t.Fatal("expected a version negotiation error")
	}
	qe, ok := err.(*QuicError)
	if ok {
		if qe.Code != VersionNegotiationError {
			t.Errorf("code = %v, want VersionNegotiationError", qe.Code)
		}
		return
	}
	if qe, ok := asQuicError(err); !ok || qe.Code != VersionNegotiationError {
		t.Errorf("err = %v, want a wrapped VersionNegotiationError", err)
	}
}

func TestVersionGateIgnoresUnsupportedZeroRTT(t *testing.T) {
	h := &Header{Type: PacketTypeZeroRTT, Version: 0xdeadbeef}
	err := versionGate(RoleServer, h, HandshakeInProgress, false)
	if _, ok := err.(*TransientError); !ok {
		t.Errorf("err = %v (%T), want *TransientError", err, err)
	}
}

func TestVersionGateClientNeverGates(t *testing.T) {
	h := &Header{Type: PacketTypeInitial, Version: 0xdeadbeef}
	if err := versionGate(RoleClient, h, HandshakeInitial, false); err != nil {
		t.Errorf("client should never be gated: %v", err)
	}
}

func asQuicError(err error) (*QuicError, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if qe, ok := err.(*QuicError); ok {
			return qe, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}

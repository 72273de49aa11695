// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "testing"

// TestDecodePacketNumberReconstructs checks invariant 5 (spec.md §8):
// decode(truncate(pn, w), expected, w) == pn whenever expected is within
// half the encoding window of pn, for every supported width.
func TestDecodePacketNumberReconstructs(t *testing.T) {
	cases := []struct {
		pn       PacketNumber
		expected PacketNumber
		length   PacketNumberLength
	}{
		{pn: 0, expected: 0, length: 1},
		{pn: 128, expected: 128, length: 1},
		{pn: 300, expected: 296, length: 1},
		{pn: 1000, expected: 999, length: 2},
		{pn: 65536, expected: 65500, length: 2},
		{pn: 1 << 20, expected: (1 << 20) - 10, length: 3},
		{pn: 1 << 30, expected: (1 << 30) + 10, length: 4},
	}
	for _, c := range cases {
		trunc := truncatePacketNumber(c.pn, c.length)
		got := decodePacketNumber(c.expected, trunc, c.length)
		if got != c.pn {
			t.Errorf("decodePacketNumber(expected=%d, truncate(%d, %d)=%d, %d) = %d, want %d",
				c.expected, c.pn, c.length, trunc, c.length, got, c.pn)
		}
	}
}

// TestDecodePacketNumberFirstPacket checks the zero-history case: the very
// first packet received in a space, where expected is 0.
func TestDecodePacketNumberFirstPacket(t *testing.T) {
	got := decodePacketNumber(0, 0, 1)
	if got != 0 {
		t.Errorf("decodePacketNumber(0, 0, 1) = %d, want 0", got)
	}
}

func TestPacketNumberLengthForDistance(t *testing.T) {
	cases := []struct {
		pn, largestAcked PacketNumber
		want             PacketNumberLength
	}{
		{pn: 10, largestAcked: 9, want: 1},
		{pn: 200, largestAcked: 0, want: 2},
		{pn: 1 << 20, largestAcked: 0, want: 3},
		{pn: 1 << 25, largestAcked: 0, want: 4},
	}
	for _, c := range cases {
		got := packetNumberLengthForDistance(c.pn, c.largestAcked)
		if got != c.want {
			t.Errorf("packetNumberLengthForDistance(%d, %d) = %d, want %d", c.pn, c.largestAcked, got, c.want)
		}
	}
}

func TestNumberSpaceString(t *testing.T) {
	cases := map[NumberSpace]string{
		InitialSpace:   "Initial",
		HandshakeSpace: "Handshake",
		AppDataSpace:   "ApplicationData",
	}
	for space, want := range cases {
		if got := space.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(space), got, want)
		}
	}
}

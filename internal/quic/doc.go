// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

// Package quic implements the loss detection and recovery core of a QUIC
// transport endpoint, together with the packet header processing pipeline
// that feeds it: header parsing, packet-number decoding and unmasking,
// packet-number-space classification, and spin-bit update.
//
// TLS handshake state, frame wire encoding, and UDP socket I/O are owned by
// collaborators outside this package; see AEAD, PacketSink, and
// CongestionController for the narrow interfaces this package expects them
// to satisfy.
package quic

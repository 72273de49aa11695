// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// PacketType distinguishes the four long-header packet types plus the
// short header and version negotiation, following the tagged-variant shape
// of spec.md §3's Header data model. Built the way quic-go's
// wire.InvariantHeader two-stage parse separates the version-independent
// prefix from the version-dependent body, adapted here to a narrower
// "header fields known except the true PN" contract (spec.md §4.1).
type PacketType int

const (
	PacketTypeInitial PacketType = iota
	PacketTypeZeroRTT
	PacketTypeHandshake
	PacketTypeRetry
	PacketTypeShort
	PacketTypeVersionNegotiation
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeInitial:
		return "Initial"
	case PacketTypeZeroRTT:
		return "0-RTT"
	case PacketTypeHandshake:
		return "Handshake"
	case PacketTypeRetry:
		return "Retry"
	case PacketTypeShort:
		return "Short"
	case PacketTypeVersionNegotiation:
		return "VersionNegotiation"
	default:
		return "invalid"
	}
}

// isLongHeader reports whether t uses the long header form.
func (t PacketType) isLongHeader() bool {
	switch t {
	case PacketTypeInitial, PacketTypeZeroRTT, PacketTypeHandshake, PacketTypeRetry:
		return true
	default:
		return false
	}
}

// space returns the packet-number space a packet of this type belongs to,
// and false if the type never consumes a packet number at all (Retry and
// Version Negotiation: spec.md §9 open question 4, and §3's invariant list).
func (t PacketType) space() (NumberSpace, bool) {
	switch t {
	case PacketTypeInitial:
		return InitialSpace, true
	case PacketTypeHandshake:
		return HandshakeSpace, true
	case PacketTypeZeroRTT, PacketTypeShort:
		return AppDataSpace, true
	default: // Retry, VersionNegotiation
		return 0, false
	}
}

// Header is the partially parsed packet header the caller hands to the
// Header Handler: all fields are known except the true, reconstructed
// packet number, which HeaderHandler.Handle fills in.
type Header struct {
	Type    PacketType
	Version uint32

	DestConnID []byte
	SrcConnID  []byte
	Token      []byte

	// PayloadLength is the declared Length field of a long header packet,
	// before subtracting the bytes consumed by the decoded PN (§4.1 step 6).
	PayloadLength int

	// PNOffset is the byte offset, within the datagram, of the first
	// (still-protected) PN byte.
	PNOffset int

	// truncatedPN/pnLength record the unmasked on-wire PN value and its
	// width, as decoded by unmaskAndDecodePN before it reconstructs
	// PacketNumber from them.
	truncatedPN      uint64
	pnLength         PacketNumberLength
	firstByteLowBits byte // first header byte's low bits, unmasked by unmaskAndDecodePN
	PacketNumber     PacketNumber
	SpinBit          bool
	KeyPhase         int

	// SupportedVersions is populated only for VersionNegotiation packets.
	SupportedVersions []uint32
}

// Role is the local endpoint's role, needed for the version gate (§4.1
// step 1) and spin-bit direction (§6.3: client inverts, server mirrors).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// HandshakeState is the minimal slice of TLS progress the version gate
// needs: whether the server is still in its initial "allow-all" state
// (spec.md §4.1 step 1).
type HandshakeState int

const (
	HandshakeInitial HandshakeState = iota // server's "allow-all" state
	HandshakeInProgress
	HandshakeConfirmed
)

// versionGate implements spec.md §4.1 step 1: on the server, for long
// headers, decide whether an unnegotiable version fails fatally, silently,
// or is ignored outright. Returns nil if negotiation should proceed
// normally (including: we are the client, or the header is a short header,
// or the version is supported).
func versionGate(role Role, h *Header, state HandshakeState, versionIsSupported bool) error {
	if role != RoleServer || !h.Type.isLongHeader() || versionIsSupported {
		return nil
	}
	switch {
	case h.Type == PacketTypeInitial:
		return quicErrorf(VersionNegotiationError, "unsupported version %#x on Initial packet", h.Version)
	case h.Type == PacketTypeZeroRTT || state == HandshakeInitial:
		return ignorePacket("unsupported version on 0-RTT or before any version has been negotiated")
	default:
		return quicErrorf(ProtocolViolation, "unsupported version %#x after handshake began", h.Version)
	}
}

// selectAEAD implements spec.md §4.1 step 2: choose the AEAD context by
// header form.
func selectAEAD(keys *ConnectionKeys, h *Header) (AEAD, error) {
	switch h.Type {
	case PacketTypeInitial, PacketTypeRetry:
		if keys.Initial == nil {
			return nil, &aeadUnsupportedVersion{headerForm: "Initial"}
		}
		return keys.Initial, nil
	case PacketTypeHandshake:
		if keys.Handshake == nil {
			return nil, &aeadUnsupportedVersion{headerForm: "Handshake"}
		}
		return keys.Handshake, nil
	case PacketTypeZeroRTT:
		if keys.ZeroRTT == nil {
			return nil, &aeadUnsupportedVersion{headerForm: "0-RTT"}
		}
		return keys.ZeroRTT, nil
	case PacketTypeShort:
		if keys.OneRTT == nil {
			return nil, &aeadUnsupportedVersion{headerForm: "1-RTT"}
		}
		return keys.OneRTT, nil
	default:
		return nil, &aeadUnsupportedVersion{headerForm: h.Type.String()}
	}
}

// ConnectionKeys bundles the four AEAD contexts a connection may have live
// at once, one per encryption level (spec.md §6.1).
type ConnectionKeys struct {
	Initial   AEAD
	ZeroRTT   AEAD
	Handshake AEAD
	OneRTT    AEAD
}

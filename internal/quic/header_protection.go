// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// HeaderHandler runs the pipeline of spec.md §4.1 against inbound
// datagrams: version gate, AEAD selection, PN unmask, PN decode and
// reconstruction, packet-number-space update, and header-type tail work
// (payload-length correction on long headers, spin-bit toggle on short
// headers).
type HeaderHandler struct {
	Role  Role
	Spin  *ConnSpin
	Log   *entryLogger
	Clock Clock
}

// ConnSpin holds the connection-observed spin bit state toggled by short
// header processing (spec.md §6.3).
type ConnSpin struct {
	Bit bool
}

// NewHeaderHandler constructs a HeaderHandler for the given role.
func NewHeaderHandler(role Role, log *logrusLogger) *HeaderHandler {
	return &HeaderHandler{Role: role, Spin: &ConnSpin{}, Log: newEntryLogger(log)}
}

// VersionSupported is the stand-in for the TLS/version-negotiation
// collaborator's decision of whether we can speak h.Version; negotiation
// itself is out of scope (spec.md §1).
type VersionSupported func(version uint32) bool

// Handle runs the full §4.1 pipeline. raw is the full datagram; h is the
// partially parsed header (everything known except the true PN); keys
// supplies the four AEAD contexts; spaces is the connection's three
// packet-number spaces, indexed by NumberSpace.
//
// On success, h.PacketNumber holds the reconstructed 62-bit PN and
// h.PNOffset has been advanced past the decoded PN bytes. Version
// Negotiation packets bypass steps 2-7 entirely and are returned as-is.
func (hh *HeaderHandler) Handle(
	raw []byte,
	h *Header,
	keys *ConnectionKeys,
	spaces [NumberSpaceCount]*PacketNumberSpace,
	state HandshakeState,
	supported VersionSupported,
) error {
	if h.Type == PacketTypeVersionNegotiation {
		return nil
	}

	// Step 1: version gate (server, long header only).
	if err := versionGate(hh.Role, h, state, supported(h.Version)); err != nil {
		return err
	}

	// Retry packets carry no protected packet number at all; nothing left
	// to unmask or reconstruct (spec.md §9 open question 4).
	if h.Type == PacketTypeRetry {
		return nil
	}

	// Step 2: select AEAD context by header form.
	aead, err := selectAEAD(keys, h)
	if err != nil {
		return err
	}

	// Step 3+4: unmask and decode the truncated PN.
	space, hasSpace := h.Type.space()
	if !hasSpace {
		return invariantf("packet type %s has no packet number space", h.Type)
	}
	ps := spaces[space]
	if err := hh.unmaskAndDecodePN(raw, h, aead, ps); err != nil {
		return err
	}

	// Step 5: update the space's high-water mark.
	isNewHigh := ps.recordReceived(h.PacketNumber)

	// Step 6: header-type tail work.
	if h.Type.isLongHeader() {
		consumed := int(h.pnLength)
		h.PayloadLength -= consumed
	} else if isNewHigh {
		hh.toggleSpin(h)
	}

	return nil
}

// unmaskAndDecodePN implements §4.1 step 3 (remove header protection from
// both the first header byte's low bits and the PN field) and step 4
// (decode and reconstruct the PN from its truncated form). The sample
// starts 4 bytes past the PN field offset (the PN field is treated as
// maximum width for sampling purposes); it is always 16 bytes, regardless
// of the actual PN length (§6.3).
func (hh *HeaderHandler) unmaskAndDecodePN(raw []byte, h *Header, aead AEAD, ps *PacketNumberSpace) error {
	sampleStart := h.PNOffset + headerProtectionSampleOffset
	sampleEnd := sampleStart + headerProtectionSampleLen
	if sampleEnd > len(raw) {
		return ignorePacket("datagram too short for header protection sample")
	}
	sample := raw[sampleStart:sampleEnd]

	// The PN field is sampled at maximum width (4 bytes) before we know its
	// true length, since the length itself is protected.
	maxPNEnd := h.PNOffset + 4
	if maxPNEnd > len(raw) {
		maxPNEnd = len(raw)
	}

	// The first header byte's reserved bits and PN-length field travel
	// under the same header-protection mask as the PN bytes themselves
	// (RFC 9001 §5.4.1), so both are handed to the AEAD provider together:
	// a leading byte for raw[0], followed by the still-masked PN bytes.
	masked := make([]byte, 1+(maxPNEnd-h.PNOffset))
	masked[0] = raw[0]
	copy(masked[1:], raw[h.PNOffset:maxPNEnd])

	var unmasked []byte
	var err error
	switch h.Type {
	case PacketTypeInitial:
		hh.Log.log.WithField("secret_label", peerInitialSecretLabel(hh.Role)).Debug("removing Initial header protection")
		unmasked, err = aead.InitialPNDecrypt(h.DestConnID, sample, masked)
	case PacketTypeHandshake:
		unmasked, err = aead.HandshakePNDecrypt(sample, masked)
	case PacketTypeZeroRTT:
		unmasked, err = aead.ZeroRTTPNDecrypt(sample, masked)
	case PacketTypeShort:
		unmasked, err = aead.OneRTTPNDecrypt(sample, masked)
	}
	if err != nil {
		return ignorePacket("header protection removal failed: " + err.Error())
	}
	if len(unmasked) < 1 {
		return ignorePacket("header protection provider returned no data")
	}

	// Long headers protect 4 reserved+length bits; short headers protect 5
	// (reserved bits plus key phase), but only the low 2 bits ever encode PN
	// length (§6.3).
	firstByteMask := byte(0x0f)
	if !h.Type.isLongHeader() {
		firstByteMask = 0x1f
	}
	h.firstByteLowBits = unmasked[0] & firstByteMask
	length := PacketNumberLength(h.firstByteLowBits&0x3) + 1
	h.pnLength = length

	pnBytes := unmasked[1:]
	if int(length) > len(pnBytes) {
		return ignorePacket("decoded packet number length exceeds sample")
	}

	var truncated uint64
	for i := 0; i < int(length); i++ {
		truncated = truncated<<8 | uint64(pnBytes[i])
	}
	h.truncatedPN = truncated
	h.PacketNumber = decodePacketNumber(ps.expectedNext(), truncated, length)
	h.PNOffset += int(length)
	return nil
}

// toggleSpin implements §4.1 step 6 / §6.3: only the new highest-PN short
// header packet in ApplicationData toggles the observed spin bit, and only
// ever forward (an out-of-order older PN must not change it, enforced by
// the isNewHigh check in the caller).
func (hh *HeaderHandler) toggleSpin(h *Header) {
	switch hh.Role {
	case RoleClient:
		hh.Spin.Bit = !h.SpinBit
	case RoleServer:
		hh.Spin.Bit = h.SpinBit
	}
}

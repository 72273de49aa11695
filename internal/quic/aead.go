// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// AEAD is the header-protection collaborator the TLS layer provides
// (spec.md §1, §6.1: "the AEAD provider is a black box"). Each method
// removes header protection given a 16-byte sample of the encrypted
// payload, and masked is the still-protected first header byte followed by
// the still-protected PN bytes (both travel under the same mask per RFC
// 9001 §5.4.1); the method returns them unmasked in the same layout.
//
// Keys are selected per (encryption level, direction); this core never
// derives or stores key material itself — a real implementation backs these
// with golang.org/x/crypto/hkdf the way ooni/netem's quicparse.go derives
// initial secrets from the destination connection ID, but that derivation
// belongs to the TLS collaborator, not here.
type AEAD interface {
	// InitialPNDecrypt unmasks the first header byte and PN bytes of an
	// Initial or Retry packet. dcid is the destination connection ID the
	// Initial secret was derived from.
	InitialPNDecrypt(dcid []byte, sample, masked []byte) ([]byte, error)
	// HandshakePNDecrypt unmasks the first header byte and PN bytes of a
	// Handshake packet.
	HandshakePNDecrypt(sample, masked []byte) ([]byte, error)
	// ZeroRTTPNDecrypt unmasks the first header byte and PN bytes of a
	// 0-RTT packet.
	ZeroRTTPNDecrypt(sample, masked []byte) ([]byte, error)
	// OneRTTPNDecrypt unmasks the first header byte and PN bytes of a
	// short-header (1-RTT) packet.
	OneRTTPNDecrypt(sample, masked []byte) ([]byte, error)
}

// headerProtectionSampleOffset and headerProtectionSampleLen are wire
// invariants (spec.md §6.3): the sample starts 4 bytes past the PN field
// offset (the PN field is treated as maximum width, 4 bytes, for sampling
// purposes) and is always 16 bytes, regardless of the decoded PN length.
const (
	headerProtectionSampleOffset = 4
	headerProtectionSampleLen    = 16
)

// RFC 9001 §5.2 derives the Initial secrets from a version-specific salt and
// the destination connection ID, then splits them into a client and a
// server secret via HKDF-Expand-Label, each further expanded into a packet
// key, IV, and header-protection key (§5.3-5.4). Deriving key material is
// the TLS collaborator's job (AEAD is a black box, §1), but the label names
// that derivation must use are part of the wire contract this package
// classifies Initial packets against, so the selection path lives here,
// mirroring ooni/netem's computeSecrets/computeHP split (label names only;
// no HKDF or AES is implemented in this core).
const (
	initialSaltV1 = "38762cf7f55934b34d179ae6a4c80cadccbb7f0a"

	initialClientSecretLabel = "client in"
	initialServerSecretLabel = "server in"
	quicKeyLabel             = "quic key"
	quicIVLabel              = "quic iv"
	quicHPLabel              = "quic hp"
)

// peerInitialSecretLabel returns the HKDF-Expand-Label name for the Initial
// secret that protects packets arriving *from* the peer: a server receives
// packets protected with the client's secret, and vice versa.
func peerInitialSecretLabel(role Role) string {
	if role == RoleServer {
		return initialClientSecretLabel
	}
	return initialServerSecretLabel
}

// aeadUnsupportedVersion is returned by selectAEAD when no key is available
// for the header form presented; the caller turns it into the appropriate
// QuicError/TransientError per §4.1 step 1.
type aeadUnsupportedVersion struct{ headerForm string }

func (e *aeadUnsupportedVersion) Error() string {
	return "no AEAD keys available for " + e.headerForm + " header"
}

// Package container implements the authenticated-encryption container that
// forms one link of a trust chain. A container binds a claims policy to an
// encrypted payload: the payload is sealed with AES-GCM under a key derived
// from ephemeral ECDH against the recipient's public key, and the policy is
// tied to that same key by a truncated GMAC binding tag. The payload carries
// an explicit discriminator marking it as either an opaque terminal payload
// or a serialized nested container; nesting is never inferred from payload
// bytes.
package container

import (
	"crypto/sha256"

	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// Magic number prefixing every serialized container.
const (
	MagicByte0 = 0x4E // 'N'
	MagicByte1 = 0x54 // 'T'
)

// Wire format versions. The decoder dispatches header parsing and the HKDF
// salt by this tag. FormatV1 is the legacy layout still produced by older
// issuers; FormatV2 additionally embeds the recipient's compressed public
// key so a verifier can identify which static key the sender targeted.
const (
	FormatV1 uint8 = 0x01
	FormatV2 uint8 = 0x02
)

// CurrentFormat is the version written by default.
const CurrentFormat = FormatV2

// FormatSalt returns the HKDF salt for a wire format version:
// SHA256(magic || version). Distinct per version so v1 and v2 containers
// never derive the same symmetric key from one shared secret.
func FormatSalt(version uint8) []byte {
	sum := sha256.Sum256([]byte{MagicByte0, MagicByte1, version})
	return sum[:]
}

// PayloadType is the mandatory discriminator for container payloads.
type PayloadType uint8

const (
	// PayloadOpaque marks the plaintext as a terminal application payload.
	PayloadOpaque PayloadType = 0x00
	// PayloadContainer marks the plaintext as a serialized nested container.
	PayloadContainer PayloadType = 0x01
)

// PolicyType indicates how a layer's claims body is carried.
type PolicyType uint8

const (
	PolicyRemote   PolicyType = 0x00
	PolicyEmbedded PolicyType = 0x01
)

// SymmetricCipher selects the AES-256-GCM authentication tag size. The
// zero value means unset, distinct from every wire value, so Create can
// default it without making the smallest tag unreachable.
type SymmetricCipher uint8

const (
	CipherAES256GCM64 SymmetricCipher = iota + 1
	CipherAES256GCM96
	CipherAES256GCM128
)

// The wire encoding is zero-based (0x00 selects the 64-bit tag).
func (c SymmetricCipher) wire() byte { return byte(c) - 1 }

func cipherFromWire(b byte) (SymmetricCipher, bool) {
	c := SymmetricCipher(b + 1)
	return c, c.valid()
}

// TagSize returns the authentication tag size in bytes.
func (c SymmetricCipher) TagSize() int {
	switch c {
	case CipherAES256GCM64:
		return 8
	case CipherAES256GCM96:
		return 12
	default:
		return 16
	}
}

func (c SymmetricCipher) valid() bool {
	return c >= CipherAES256GCM64 && c <= CipherAES256GCM128
}

// ProtocolEnum is the transport protocol of a resource locator. As with
// SymmetricCipher, zero means unset and the wire encoding is zero-based.
type ProtocolEnum uint8

const (
	ProtocolHTTP ProtocolEnum = iota + 1
	ProtocolHTTPS
)

func (p ProtocolEnum) wire() byte { return byte(p) - 1 }

func protocolFromWire(b byte) (ProtocolEnum, bool) {
	p := ProtocolEnum(b + 1)
	return p, p == ProtocolHTTP || p == ProtocolHTTPS
}

// BindingSize is the truncated GMAC policy binding size in bytes.
const BindingSize = 8

// IVSize is the per-payload IV size. The IV is right-aligned into the
// 12-byte GCM nonce.
const IVSize = 3

// MaxPayloadSize is the maximum payload section size (24-bit length).
const MaxPayloadSize = 1<<24 - 1

// CurveID re-exports the crypto curve identifier carried in headers.
type CurveID = crypto.CurveID

const (
	CurveP256 = crypto.CurveP256
	CurveP384 = crypto.CurveP384
	CurveP521 = crypto.CurveP521
)

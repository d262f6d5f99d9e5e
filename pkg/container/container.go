package container

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// Payload is the encrypted payload section of a container.
type Payload struct {
	// Cipher selects the AES-GCM tag size.
	Cipher SymmetricCipher

	// Type is the mandatory payload discriminator. It is authenticated as
	// AEAD additional data, so it cannot be flipped without detection.
	Type PayloadType

	// IV is the 3-byte per-payload IV (right-aligned into the GCM nonce).
	IV []byte

	// Ciphertext is the AEAD output with the authentication tag appended.
	Ciphertext []byte
}

// Signature is the optional creator signature section: a compressed
// public key followed by a raw r||s ECDSA signature over every serialized
// byte that precedes the section.
type Signature struct {
	Curve     CurveID
	PublicKey []byte
	Sig       []byte
}

// Container is one fully-assembled link of a trust chain. Containers are
// immutable once created; a renewed chain is a freshly built one.
type Container struct {
	Header    Header
	Policy    Policy
	Payload   Payload
	Signature *Signature
}

// Encode serializes the container to its wire form.
func (c *Container) Encode() ([]byte, error) {
	body, err := c.encodeBody()
	if err != nil {
		return nil, err
	}
	if c.Signature == nil {
		return body, nil
	}

	if len(c.Signature.PublicKey) != crypto.CompressedKeySize(c.Signature.Curve) ||
		len(c.Signature.Sig) != crypto.SignatureSize(c.Signature.Curve) {
		return nil, fmt.Errorf("%w: signature section size", ErrFormat)
	}
	out := make([]byte, 0, len(body)+len(c.Signature.PublicKey)+len(c.Signature.Sig))
	out = append(out, body...)
	out = append(out, c.Signature.PublicKey...)
	out = append(out, c.Signature.Sig...)
	return out, nil
}

// encodeBody serializes everything up to the signature section. The
// symmetric config byte carries the signature flag, so the signed bytes
// already commit to the signature's presence and curve.
func (c *Container) encodeBody() ([]byte, error) {
	var buf bytes.Buffer

	if err := c.Header.marshal(&buf); err != nil {
		return nil, err
	}
	if err := c.Policy.marshal(&buf); err != nil {
		return nil, err
	}

	if !c.Payload.Cipher.valid() {
		return nil, fmt.Errorf("%w: unknown cipher 0x%02x", ErrFormat, uint8(c.Payload.Cipher))
	}
	symConfig := c.Payload.Cipher.wire() & 0x0F
	if c.Signature != nil {
		symConfig |= sigPresentBit | (byte(c.Signature.Curve)&0x07)<<4
	}
	buf.WriteByte(symConfig)

	switch c.Payload.Type {
	case PayloadOpaque, PayloadContainer:
	default:
		return nil, fmt.Errorf("%w: unknown payload type 0x%02x", ErrFormat, uint8(c.Payload.Type))
	}
	buf.WriteByte(byte(c.Payload.Type))

	sectionLen := len(c.Payload.IV) + len(c.Payload.Ciphertext)
	if sectionLen > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf.WriteByte(byte(sectionLen >> 16))
	buf.WriteByte(byte(sectionLen >> 8))
	buf.WriteByte(byte(sectionLen))

	buf.Write(c.Payload.IV)
	buf.Write(c.Payload.Ciphertext)

	return buf.Bytes(), nil
}

const sigPresentBit = 0x80

// Decode parses a serialized container. Structure and the creator
// signature (when present) are checked here; binding and payload
// verification happen in Open.
func Decode(data []byte) (*Container, error) {
	c, r, err := decodeFrom(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	// Trailing bytes mean the input is not a single well-formed container.
	var scratch [1]byte
	if n, _ := r.Read(scratch[:]); n != 0 {
		return nil, fmt.Errorf("%w: trailing data after container", ErrFormat)
	}

	if err := c.VerifySignature(); err != nil {
		return nil, err
	}

	return c, nil
}

// IsContainer reports whether data begins with the container magic and a
// known format tag. This is a cheap structural probe for diagnostics only;
// nesting decisions are made from the payload discriminator, never from
// probing payload bytes.
func IsContainer(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	if data[0] != MagicByte0 || data[1] != MagicByte1 {
		return false
	}
	return data[2] == FormatV1 || data[2] == FormatV2
}

func decodeFrom(r io.Reader) (*Container, io.Reader, error) {
	header, err := parseHeader(r)
	if err != nil {
		return nil, nil, err
	}

	policy, err := parsePolicy(r)
	if err != nil {
		return nil, nil, err
	}

	prefix := make([]byte, 5)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, nil, fmt.Errorf("%w: payload prefix", ErrTruncated)
	}

	symConfig := prefix[0]
	cipher, ok := cipherFromWire(symConfig & 0x0F)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown cipher 0x%02x", ErrFormat, symConfig&0x0F)
	}

	var sigCurve CurveID
	hasSignature := symConfig&sigPresentBit != 0
	if hasSignature {
		sigCurve = CurveID((symConfig >> 4) & 0x07)
		if _, err := crypto.CurveFor(sigCurve); err != nil {
			return nil, nil, err
		}
	}

	ptype := PayloadType(prefix[1])
	switch ptype {
	case PayloadOpaque, PayloadContainer:
	default:
		return nil, nil, fmt.Errorf("%w: unknown payload type 0x%02x", ErrFormat, prefix[1])
	}

	sectionLen := int(prefix[2])<<16 | int(prefix[3])<<8 | int(prefix[4])
	if sectionLen < IVSize+cipher.TagSize() {
		return nil, nil, fmt.Errorf("%w: payload section too short", ErrFormat)
	}

	section := make([]byte, sectionLen)
	if _, err := io.ReadFull(r, section); err != nil {
		return nil, nil, fmt.Errorf("%w: payload section", ErrTruncated)
	}

	c := &Container{
		Header: *header,
		Policy: policy,
		Payload: Payload{
			Cipher:     cipher,
			Type:       ptype,
			IV:         section[:IVSize],
			Ciphertext: section[IVSize:],
		},
	}

	if hasSignature {
		sig := Signature{Curve: sigCurve}
		sig.PublicKey = make([]byte, crypto.CompressedKeySize(sigCurve))
		if _, err := io.ReadFull(r, sig.PublicKey); err != nil {
			return nil, nil, fmt.Errorf("%w: signature public key", ErrTruncated)
		}
		sig.Sig = make([]byte, crypto.SignatureSize(sigCurve))
		if _, err := io.ReadFull(r, sig.Sig); err != nil {
			return nil, nil, fmt.Errorf("%w: signature", ErrTruncated)
		}
		c.Signature = &sig
	}

	return c, r, nil
}

// VerifySignature checks the creator signature, if present, against the
// serialized bytes it covers. Containers without a signature pass.
func (c *Container) VerifySignature() error {
	if c.Signature == nil {
		return nil
	}

	curve, err := crypto.CurveFor(c.Signature.Curve)
	if err != nil {
		return err
	}
	pub, err := crypto.UnmarshalPublicKey(curve, c.Signature.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: bad signer key", ErrSignature)
	}

	body, err := c.encodeBody()
	if err != nil {
		return err
	}
	if !crypto.VerifyECDSA(pub, crypto.HashForSigning(body), c.Signature.Sig) {
		return ErrSignature
	}
	return nil
}

// bindingDigest is the value the policy binding GMAC covers: a digest of
// the canonical policy bytes concatenated with the payload ciphertext.
// Covering the ciphertext ties the claims to this exact encrypted payload,
// independent of the payload's own AEAD tag.
func bindingDigest(policyBytes, ciphertext []byte) []byte {
	h := sha256.New()
	h.Write(policyBytes)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// gcmNonce pads the wire IV to the full GCM nonce size.
func gcmNonce(iv []byte, nonceSize int) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce[nonceSize-len(iv):], iv)
	return nonce
}

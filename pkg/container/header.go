package container

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// ResourceLocator references the key authority for a layer (and, for remote
// policies, the policy location).
type ResourceLocator struct {
	Protocol ProtocolEnum
	Body     string
}

// URL returns the locator as a URL string.
func (rl ResourceLocator) URL() string {
	switch rl.Protocol {
	case ProtocolHTTP:
		return "http://" + rl.Body
	default:
		return "https://" + rl.Body
	}
}

// Header holds the metadata needed to re-derive a layer's symmetric key.
type Header struct {
	// Version is the wire format tag; parsing and HKDF salt dispatch on it.
	Version uint8

	// Locator identifies the key authority for this layer.
	Locator ResourceLocator

	// Curve is the elliptic curve for key agreement.
	Curve CurveID

	// RecipientKey is the compressed static public key the sender encrypted
	// to. Present only in FormatV2.
	RecipientKey []byte

	// EphemeralKey is the sender's compressed ephemeral public key.
	EphemeralKey []byte
}

// Policy carries a layer's claims and their cryptographic binding.
type Policy struct {
	Type PolicyType

	// Body is the embedded claims bytes (PolicyEmbedded).
	Body []byte

	// Remote locates an external policy (PolicyRemote).
	Remote *ResourceLocator

	// Binding is the truncated GMAC over SHA256(policy bytes || ciphertext),
	// keyed with the payload encryption key.
	Binding []byte
}

// canonicalBytes returns the policy bytes covered by the binding tag.
func (p *Policy) canonicalBytes() ([]byte, error) {
	switch p.Type {
	case PolicyEmbedded:
		return p.Body, nil
	case PolicyRemote:
		if p.Remote == nil {
			return nil, fmt.Errorf("%w: remote policy without locator", ErrFormat)
		}
		var buf bytes.Buffer
		writeResourceLocator(&buf, *p.Remote)
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unknown policy type 0x%02x", ErrFormat, uint8(p.Type))
	}
}

// EphemeralPublicKey parses the sender's ephemeral public key.
func (h *Header) EphemeralPublicKey() (*ecdsa.PublicKey, error) {
	curve, err := crypto.CurveFor(h.Curve)
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalPublicKey(curve, h.EphemeralKey)
}

// parseHeader reads the header section: magic, version, locator, curve,
// recipient key (v2), ephemeral key.
func parseHeader(r io.Reader) (*Header, error) {
	magic := make([]byte, 3)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: magic", ErrTruncated)
	}
	if magic[0] != MagicByte0 || magic[1] != MagicByte1 {
		return nil, fmt.Errorf("%w: bad magic number", ErrFormat)
	}

	h := &Header{Version: magic[2]}
	switch h.Version {
	case FormatV1, FormatV2:
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedVersion, h.Version)
	}

	locator, err := parseResourceLocator(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key locator: %w", err)
	}
	h.Locator = locator

	curveByte := make([]byte, 1)
	if _, err := io.ReadFull(r, curveByte); err != nil {
		return nil, fmt.Errorf("%w: curve id", ErrTruncated)
	}
	h.Curve = CurveID(curveByte[0])
	if _, err := crypto.CurveFor(h.Curve); err != nil {
		return nil, err
	}

	keySize := crypto.CompressedKeySize(h.Curve)

	if h.Version >= FormatV2 {
		h.RecipientKey = make([]byte, keySize)
		if _, err := io.ReadFull(r, h.RecipientKey); err != nil {
			return nil, fmt.Errorf("%w: recipient key", ErrTruncated)
		}
	}

	h.EphemeralKey = make([]byte, keySize)
	if _, err := io.ReadFull(r, h.EphemeralKey); err != nil {
		return nil, fmt.Errorf("%w: ephemeral key", ErrTruncated)
	}

	return h, nil
}

func (h *Header) marshal(buf *bytes.Buffer) error {
	buf.WriteByte(MagicByte0)
	buf.WriteByte(MagicByte1)
	buf.WriteByte(h.Version)

	if err := writeResourceLocator(buf, h.Locator); err != nil {
		return err
	}

	buf.WriteByte(byte(h.Curve))

	keySize := crypto.CompressedKeySize(h.Curve)
	if h.Version >= FormatV2 {
		if len(h.RecipientKey) != keySize {
			return fmt.Errorf("%w: recipient key size", ErrFormat)
		}
		buf.Write(h.RecipientKey)
	}

	if len(h.EphemeralKey) != keySize {
		return fmt.Errorf("%w: ephemeral key size", ErrFormat)
	}
	buf.Write(h.EphemeralKey)

	return nil
}

func parseResourceLocator(r io.Reader) (ResourceLocator, error) {
	var rl ResourceLocator

	prefix := make([]byte, 2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return rl, ErrTruncated
	}

	protocol, ok := protocolFromWire(prefix[0])
	if !ok {
		return rl, fmt.Errorf("%w: unknown locator protocol 0x%02x", ErrFormat, prefix[0])
	}
	rl.Protocol = protocol
	bodyLen := int(prefix[1])

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return rl, ErrTruncated
	}
	rl.Body = string(body)

	return rl, nil
}

func writeResourceLocator(buf *bytes.Buffer, rl ResourceLocator) error {
	if len(rl.Body) > 255 {
		return fmt.Errorf("%w: locator body too long", ErrFormat)
	}
	if rl.Protocol != ProtocolHTTP && rl.Protocol != ProtocolHTTPS {
		return fmt.Errorf("%w: unknown locator protocol", ErrFormat)
	}
	buf.WriteByte(rl.Protocol.wire())
	buf.WriteByte(byte(len(rl.Body)))
	buf.WriteString(rl.Body)
	return nil
}

func parsePolicy(r io.Reader) (Policy, error) {
	var p Policy

	typeByte := make([]byte, 1)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		return p, fmt.Errorf("%w: policy type", ErrTruncated)
	}
	p.Type = PolicyType(typeByte[0])

	switch p.Type {
	case PolicyRemote:
		rl, err := parseResourceLocator(r)
		if err != nil {
			return p, fmt.Errorf("%w: remote policy locator", ErrTruncated)
		}
		p.Remote = &rl

	case PolicyEmbedded:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return p, fmt.Errorf("%w: policy length", ErrTruncated)
		}
		bodyLen := int(binary.BigEndian.Uint16(lenBytes))

		p.Body = make([]byte, bodyLen)
		if _, err := io.ReadFull(r, p.Body); err != nil {
			return p, fmt.Errorf("%w: policy body", ErrTruncated)
		}

	default:
		return p, fmt.Errorf("%w: unknown policy type 0x%02x", ErrFormat, typeByte[0])
	}

	p.Binding = make([]byte, BindingSize)
	if _, err := io.ReadFull(r, p.Binding); err != nil {
		return p, fmt.Errorf("%w: policy binding", ErrTruncated)
	}

	return p, nil
}

func (p *Policy) marshal(buf *bytes.Buffer) error {
	buf.WriteByte(byte(p.Type))

	switch p.Type {
	case PolicyRemote:
		if p.Remote == nil {
			return fmt.Errorf("%w: remote policy without locator", ErrFormat)
		}
		if err := writeResourceLocator(buf, *p.Remote); err != nil {
			return err
		}

	case PolicyEmbedded:
		if len(p.Body) > 65535 {
			return fmt.Errorf("%w: policy body too long", ErrFormat)
		}
		lenBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBytes, uint16(len(p.Body)))
		buf.Write(lenBytes)
		buf.Write(p.Body)

	default:
		return fmt.Errorf("%w: unknown policy type 0x%02x", ErrFormat, uint8(p.Type))
	}

	if len(p.Binding) != BindingSize {
		return fmt.Errorf("%w: binding size", ErrFormat)
	}
	buf.Write(p.Binding)

	return nil
}

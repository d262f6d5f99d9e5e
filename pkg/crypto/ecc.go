// Package crypto provides the cryptographic primitives used by trustchain
// containers: ECDH key agreement, HKDF key derivation, AES-GCM, and RSA-OAEP
// key wrapping for the rewrap transport.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

// CurveID identifies the elliptic curve used for a container layer.
// The value is carried verbatim in the container header.
type CurveID uint8

const (
	// CurveP256 is NIST P-256 (secp256r1)
	CurveP256 CurveID = 0x00
	// CurveP384 is NIST P-384 (secp384r1)
	CurveP384 CurveID = 0x01
	// CurveP521 is NIST P-521 (secp521r1)
	CurveP521 CurveID = 0x02
)

var (
	ErrUnsupportedCurve     = errors.New("unsupported elliptic curve")
	ErrInvalidPublicKey     = errors.New("invalid public key")
	ErrInvalidCompressedKey = errors.New("invalid compressed public key format")
)

// CurveFor returns the elliptic.Curve for a given CurveID.
func CurveFor(id CurveID) (elliptic.Curve, error) {
	switch id {
	case CurveP256:
		return elliptic.P256(), nil
	case CurveP384:
		return elliptic.P384(), nil
	case CurveP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: curve id 0x%02x", ErrUnsupportedCurve, uint8(id))
	}
}

// CurveIDFor returns the CurveID for an elliptic.Curve.
func CurveIDFor(curve elliptic.Curve) (CurveID, error) {
	switch curve {
	case elliptic.P256():
		return CurveP256, nil
	case elliptic.P384():
		return CurveP384, nil
	case elliptic.P521():
		return CurveP521, nil
	default:
		return 0, ErrUnsupportedCurve
	}
}

// CompressedKeySize returns the size in bytes of a compressed public key.
func CompressedKeySize(id CurveID) int {
	switch id {
	case CurveP256:
		return 33 // 1 byte prefix + 32 bytes X
	case CurveP384:
		return 49
	case CurveP521:
		return 67
	default:
		return 0
	}
}

// SignatureSize returns the size in bytes of a raw r||s ECDSA signature.
func SignatureSize(id CurveID) int {
	switch id {
	case CurveP256:
		return 64
	case CurveP384:
		return 96
	case CurveP521:
		return 132
	default:
		return 0
	}
}

// GenerateKeyPair generates a new ECDSA key pair on the given curve.
func GenerateKeyPair(id CurveID) (*ecdsa.PrivateKey, error) {
	curve, err := CurveFor(id)
	if err != nil {
		return nil, err
	}

	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return priv, nil
}

// CompressPublicKey compresses an ECDSA public key to X9.62 compressed format:
// 0x02 or 0x03 prefix (depending on Y parity) followed by the X coordinate.
func CompressPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, ErrInvalidPublicKey
	}

	byteLen := (pub.Curve.Params().BitSize + 7) / 8

	prefix := byte(0x02)
	if pub.Y.Bit(0) == 1 {
		prefix = 0x03
	}

	xBytes := pub.X.Bytes()
	compressed := make([]byte, 1+byteLen)
	compressed[0] = prefix
	copy(compressed[1+byteLen-len(xBytes):], xBytes)

	return compressed, nil
}

// DecompressPublicKey decompresses an X9.62 compressed public key.
func DecompressPublicKey(curve elliptic.Curve, compressed []byte) (*ecdsa.PublicKey, error) {
	params := curve.Params()
	byteLen := (params.BitSize + 7) / 8

	if len(compressed) != 1+byteLen {
		return nil, ErrInvalidCompressedKey
	}

	prefix := compressed[0]
	if prefix != 0x02 && prefix != 0x03 {
		return nil, ErrInvalidCompressedKey
	}

	x := new(big.Int).SetBytes(compressed[1:])
	y := decompressY(curve, x, prefix == 0x03)
	if y == nil {
		return nil, ErrInvalidCompressedKey
	}

	if !curve.IsOnCurve(x, y) {
		return nil, ErrInvalidCompressedKey
	}

	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// decompressY recovers the Y coordinate for a point on a NIST curve.
// For p ≡ 3 (mod 4), sqrt(a) = a^((p+1)/4) mod p; all NIST P curves qualify.
func decompressY(curve elliptic.Curve, x *big.Int, yOdd bool) *big.Int {
	params := curve.Params()
	p := params.P

	// y^2 = x^3 - 3x + b (mod p)
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)
	x3.Mod(x3, p)

	ax := new(big.Int).Mul(x, big.NewInt(-3))
	ax.Mod(ax, p)

	y2 := new(big.Int).Add(x3, ax)
	y2.Add(y2, params.B)
	y2.Mod(y2, p)

	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))

	y := new(big.Int).Exp(y2, exp, p)

	if y.Bit(0) == 1 != yOdd {
		y.Sub(p, y)
	}

	check := new(big.Int).Mul(y, y)
	check.Mod(check, p)
	if check.Cmp(y2) != 0 {
		return nil
	}

	return y
}

// UnmarshalPublicKey parses a public key from compressed or uncompressed format.
func UnmarshalPublicKey(curve elliptic.Curve, data []byte) (*ecdsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPublicKey
	}

	switch data[0] {
	case 0x04:
		x, y := elliptic.Unmarshal(curve, data)
		if x == nil {
			return nil, ErrInvalidPublicKey
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	case 0x02, 0x03:
		return DecompressPublicKey(curve, data)
	default:
		return nil, ErrInvalidPublicKey
	}
}

// ECDH performs Elliptic Curve Diffie-Hellman key agreement.
// Returns the X coordinate of the resulting point, left-padded to the
// curve's byte size.
func ECDH(privateKey *ecdsa.PrivateKey, publicKey *ecdsa.PublicKey) ([]byte, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidPublicKey
	}

	if privateKey.Curve != publicKey.Curve {
		return nil, errors.New("curve mismatch between private and public key")
	}

	x, _ := privateKey.Curve.ScalarMult(publicKey.X, publicKey.Y, privateKey.D.Bytes())
	if x == nil {
		return nil, errors.New("ECDH computation failed")
	}

	byteLen := (privateKey.Curve.Params().BitSize + 7) / 8
	sharedSecret := make([]byte, byteLen)
	xBytes := x.Bytes()
	copy(sharedSecret[byteLen-len(xBytes):], xBytes)

	return sharedSecret, nil
}

// SignECDSA signs a message hash, returning the signature as r || s with
// each component padded to the curve's byte size.
func SignECDSA(privateKey *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, privateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("ECDSA signing failed: %w", err)
	}

	byteLen := (privateKey.Curve.Params().BitSize + 7) / 8

	sig := make([]byte, byteLen*2)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[byteLen-len(rBytes):byteLen], rBytes)
	copy(sig[byteLen*2-len(sBytes):], sBytes)

	return sig, nil
}

// VerifyECDSA verifies a raw r || s signature over a message hash.
func VerifyECDSA(publicKey *ecdsa.PublicKey, hash, signature []byte) bool {
	byteLen := (publicKey.Curve.Params().BitSize + 7) / 8

	if len(signature) != byteLen*2 {
		return false
	}

	r := new(big.Int).SetBytes(signature[:byteLen])
	s := new(big.Int).SetBytes(signature[byteLen:])

	return ecdsa.Verify(publicKey, hash, r, s)
}

// HashForSigning computes the SHA-256 digest signed by layer signatures.
func HashForSigning(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

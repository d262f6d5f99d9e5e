package container

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// CreateConfig configures container creation.
type CreateConfig struct {
	// Locator identifies the key authority able to derive this layer's key.
	Locator string

	// LocatorProtocol defaults to HTTPS.
	LocatorProtocol ProtocolEnum

	// RecipientPublicKey is the authority's static public key for ECDH.
	RecipientPublicKey *ecdsa.PublicKey

	// Curve is the elliptic curve for key agreement (default P-256).
	Curve CurveID

	// Cipher selects the AES-GCM tag size (default 128-bit).
	Cipher SymmetricCipher

	// Version is the wire format to emit (default CurrentFormat).
	Version uint8

	// RemotePolicy, when set, stores the policy by reference instead of
	// embedding the claims body.
	RemotePolicy *ResourceLocator

	// SigningKey, when set, appends a creator signature over the serialized
	// container. Off by default.
	SigningKey *ecdsa.PrivateKey
}

func (cfg *CreateConfig) validate() error {
	if cfg.Locator == "" {
		return ErrMissingLocator
	}
	if cfg.RecipientPublicKey == nil {
		return ErrMissingRecipientKey
	}
	return nil
}

// Create builds a single container: derives an ephemeral key pair, performs
// ECDH against the recipient's static key, derives the symmetric key via
// HKDF with the format-version salt, seals the payload, and computes the
// policy binding over the claims and the resulting ciphertext.
func Create(cfg CreateConfig, claimsBody, payload []byte, payloadType PayloadType) (*Container, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	version := cfg.Version
	if version == 0 {
		version = CurrentFormat
	}
	switch version {
	case FormatV1, FormatV2:
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedVersion, version)
	}

	cipher := cfg.Cipher
	if cipher == 0 {
		cipher = CipherAES256GCM128
	}
	protocol := cfg.LocatorProtocol
	if protocol == 0 {
		protocol = ProtocolHTTPS
	}

	curve, err := crypto.CurveFor(cfg.Curve)
	if err != nil {
		return nil, err
	}
	if cfg.RecipientPublicKey.Curve != curve {
		return nil, fmt.Errorf("%w: recipient key is not on the configured curve", crypto.ErrInvalidPublicKey)
	}

	ephemeral, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	sharedSecret, err := crypto.ECDH(ephemeral, cfg.RecipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}

	key, err := crypto.DeriveKey(sharedSecret, FormatSalt(version), nil, crypto.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer crypto.Zeroize(key)
	crypto.Zeroize(sharedSecret)

	ephemeralCompressed, err := crypto.CompressPublicKey(&ephemeral.PublicKey)
	if err != nil {
		return nil, err
	}

	header := Header{
		Version:      version,
		Locator:      ResourceLocator{Protocol: protocol, Body: cfg.Locator},
		Curve:        cfg.Curve,
		EphemeralKey: ephemeralCompressed,
	}
	if version >= FormatV2 {
		recipientCompressed, err := crypto.CompressPublicKey(cfg.RecipientPublicKey)
		if err != nil {
			return nil, err
		}
		header.RecipientKey = recipientCompressed
	}

	policy := Policy{Type: PolicyEmbedded, Body: claimsBody}
	if cfg.RemotePolicy != nil {
		policy = Policy{Type: PolicyRemote, Remote: cfg.RemotePolicy}
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	aead, err := crypto.NewAESGCMWithTagSize(key, cipher.TagSize())
	if err != nil {
		return nil, err
	}

	// The discriminator rides as AEAD additional data, so a flipped payload
	// type byte fails decryption.
	aad := []byte{byte(payloadType)}
	ciphertext := aead.Seal(nil, gcmNonce(iv, aead.NonceSize()), payload, aad)

	if IVSize+len(ciphertext) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	policyBytes, err := policy.canonicalBytes()
	if err != nil {
		return nil, err
	}
	binding, err := computeBinding(key, policyBytes, ciphertext)
	if err != nil {
		return nil, err
	}
	policy.Binding = binding

	c := &Container{
		Header: header,
		Policy: policy,
		Payload: Payload{
			Cipher:     cipher,
			Type:       payloadType,
			IV:         iv,
			Ciphertext: ciphertext,
		},
	}

	if cfg.SigningKey != nil {
		if err := sign(c, cfg.SigningKey); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// sign attaches the creator signature. The signature flag is committed
// into the serialized body before signing, so the signed bytes already
// declare the signature's presence and curve.
func sign(c *Container, key *ecdsa.PrivateKey) error {
	curveID, err := crypto.CurveIDFor(key.Curve)
	if err != nil {
		return err
	}
	pub, err := crypto.CompressPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}
	c.Signature = &Signature{Curve: curveID, PublicKey: pub}

	body, err := c.encodeBody()
	if err != nil {
		return err
	}
	sig, err := crypto.SignECDSA(key, crypto.HashForSigning(body))
	if err != nil {
		return err
	}
	c.Signature.Sig = sig
	return nil
}

// computeBinding produces the truncated GMAC tying the policy to the
// payload encryption key and ciphertext.
func computeBinding(key, policyBytes, ciphertext []byte) ([]byte, error) {
	tag, err := crypto.GMAC(key, bindingDigest(policyBytes, ciphertext))
	if err != nil {
		return nil, err
	}
	return tag[:BindingSize], nil
}

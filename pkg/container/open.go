package container

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"fmt"

	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// DeriveKey recomputes a container's symmetric key from the recipient's
// static private key: ECDH against the embedded ephemeral public key, then
// HKDF with the salt for the container's format version. Layers whose
// private key is held by the issuer are derived via the key access
// collaborator instead; Open accepts the key from either path.
func DeriveKey(c *Container, recipientPrivateKey *ecdsa.PrivateKey) ([]byte, error) {
	if recipientPrivateKey == nil {
		return nil, ErrMissingKey
	}

	ephemeralPub, err := c.Header.EphemeralPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral key: %w", err)
	}

	sharedSecret, err := crypto.ECDH(recipientPrivateKey, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	defer crypto.Zeroize(sharedSecret)

	key, err := crypto.DeriveKey(sharedSecret, FormatSalt(c.Header.Version), nil, crypto.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	return key, nil
}

// Open verifies the policy binding and decrypts the payload with the given
// symmetric key. The binding is checked before any AEAD decryption is
// attempted; a mismatch is terminal.
func Open(c *Container, key []byte) ([]byte, error) {
	if len(key) != crypto.AESKeySize {
		return nil, ErrMissingKey
	}

	if err := VerifyBinding(c, key); err != nil {
		return nil, err
	}

	aead, err := crypto.NewAESGCMWithTagSize(key, c.Payload.Cipher.TagSize())
	if err != nil {
		return nil, err
	}

	aad := []byte{byte(c.Payload.Type)}
	plaintext, err := aead.Open(nil, gcmNonce(c.Payload.IV, aead.NonceSize()), c.Payload.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: payload authentication", ErrIntegrity)
	}

	return plaintext, nil
}

// VerifyBinding recomputes the policy binding and compares it in constant
// time against the tag carried in the container.
func VerifyBinding(c *Container, key []byte) error {
	policyBytes, err := c.Policy.canonicalBytes()
	if err != nil {
		return err
	}

	expected, err := computeBinding(key, policyBytes, c.Payload.Ciphertext)
	if err != nil {
		return err
	}

	if !hmac.Equal(expected, c.Policy.Binding) {
		return fmt.Errorf("%w: policy binding mismatch", ErrIntegrity)
	}

	return nil
}

// OpenWithPrivateKey derives the symmetric key locally and opens the
// container in one step.
func OpenWithPrivateKey(c *Container, recipientPrivateKey *ecdsa.PrivateKey) ([]byte, error) {
	key, err := DeriveKey(c, recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	return Open(c, key)
}

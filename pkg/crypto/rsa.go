package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// MinRSAKeySize is the minimum supported RSA key size in bits.
	MinRSAKeySize = 2048
)

var (
	ErrRSAKeyTooSmall = errors.New("RSA key size too small: minimum 2048 bits required")
	ErrRSADecryption  = errors.New("RSA decryption failed")
)

// WrapKeyRSA wraps a symmetric key using RSA-OAEP with SHA-256.
// The key access service returns layer keys wrapped with the requesting
// client's rewrap public key so the plaintext key never crosses the wire.
func WrapKeyRSA(symmetricKey []byte, publicKey *rsa.PublicKey) ([]byte, error) {
	if publicKey == nil {
		return nil, errors.New("public key is nil")
	}

	if publicKey.Size()*8 < MinRSAKeySize {
		return nil, ErrRSAKeyTooSmall
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, symmetricKey, []byte{})
	if err != nil {
		return nil, fmt.Errorf("RSA-OAEP encryption failed: %w", err)
	}

	return wrapped, nil
}

// UnwrapKeyRSA unwraps a symmetric key using RSA-OAEP with SHA-256.
func UnwrapKeyRSA(wrappedKey []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, errors.New("private key is nil")
	}

	if privateKey.Size()*8 < MinRSAKeySize {
		return nil, ErrRSAKeyTooSmall
	}

	unwrapped, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrappedKey, []byte{})
	if err != nil {
		return nil, ErrRSADecryption
	}

	return unwrapped, nil
}

// GenerateRSAKeyPair generates an RSA key pair for the rewrap transport.
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < MinRSAKeySize {
		return nil, ErrRSAKeyTooSmall
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	return privateKey, nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// AESKeySize is the key size for AES-256 in bytes.
	AESKeySize = 32

	// AESGCMNonceSize is the standard nonce size for AES-GCM (96 bits).
	AESGCMNonceSize = 12

	// AESGCMTagSize is the default authentication tag size (128 bits).
	AESGCMTagSize = 16
)

var (
	ErrInvalidKeySize   = errors.New("invalid key size: must be 32 bytes for AES-256")
	ErrInvalidNonceSize = errors.New("invalid nonce size")
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")
)

// GenerateNonce generates a cryptographically secure random GCM nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, AESGCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// NewAESGCM creates an AES-GCM cipher.AEAD from a 256-bit key.
func NewAESGCM(key []byte) (cipher.AEAD, error) {
	return NewAESGCMWithTagSize(key, AESGCMTagSize)
}

// NewAESGCMWithTagSize creates an AES-GCM cipher.AEAD with a truncated
// authentication tag. Container layers select the tag size in the header.
func NewAESGCMWithTagSize(key []byte, tagSize int) (cipher.AEAD, error) {
	if len(key) != AESKeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

// EncryptAESGCM encrypts plaintext using AES-256-GCM with a full-size tag.
// Returns ciphertext with the authentication tag appended.
func EncryptAESGCM(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != AESGCMNonceSize {
		return nil, ErrInvalidNonceSize
	}

	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// DecryptAESGCM decrypts AES-256-GCM ciphertext (tag appended).
func DecryptAESGCM(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != AESGCMNonceSize {
		return nil, ErrInvalidNonceSize
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// GMAC computes an AES-GMAC tag over data: AES-GCM with a zero nonce, no
// plaintext, and data as additional authenticated data. This is the policy
// binding primitive; the truncated result ties the policy bytes to the
// layer's symmetric key without encrypting them.
func GMAC(key, data []byte) ([]byte, error) {
	aead, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	return aead.Seal(nil, nonce, nil, data), nil
}

// Zeroize overwrites key material in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

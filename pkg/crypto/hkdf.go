package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a symmetric key from an ECDH shared secret using
// HKDF-SHA256. The salt is format-version specific (see FormatSalt in the
// container package); info carries optional context and may be nil.
func DeriveKey(sharedSecret, salt, info []byte, keySize int) ([]byte, error) {
	reader := hkdf.New(sha256.New, sharedSecret, salt, info)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}

	return key, nil
}

// DeriveKeys derives multiple keys from one shared secret in a single HKDF
// expansion. Used when a layer needs both an encryption key and a MAC key.
func DeriveKeys(sharedSecret, salt, info []byte, keySizes ...int) ([][]byte, error) {
	totalSize := 0
	for _, size := range keySizes {
		totalSize += size
	}

	reader := hkdf.New(sha256.New, sharedSecret, salt, info)
	material := make([]byte, totalSize)
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, err
	}

	keys := make([][]byte, len(keySizes))
	offset := 0
	for i, size := range keySizes {
		keys[i] = make([]byte, size)
		copy(keys[i], material[offset:offset+size])
		offset += size
	}

	return keys, nil
}

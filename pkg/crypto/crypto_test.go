package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestECDHSharedSecretAgreement(t *testing.T) {
	alice, err := GenerateKeyPair(CurveP256)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	bob, err := GenerateKeyPair(CurveP256)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	s1, err := ECDH(alice, &bob.PublicKey)
	if err != nil {
		t.Fatalf("ECDH failed: %v", err)
	}
	s2, err := ECDH(bob, &alice.PublicKey)
	if err != nil {
		t.Fatalf("ECDH failed: %v", err)
	}

	if !bytes.Equal(s1, s2) {
		t.Error("both sides should derive the same shared secret")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	for _, id := range []CurveID{CurveP256, CurveP384, CurveP521} {
		key, err := GenerateKeyPair(id)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}

		compressed, err := CompressPublicKey(&key.PublicKey)
		if err != nil {
			t.Fatalf("compression failed: %v", err)
		}
		if len(compressed) != CompressedKeySize(id) {
			t.Errorf("compressed size: got %d, want %d", len(compressed), CompressedKeySize(id))
		}

		decompressed, err := UnmarshalPublicKey(key.Curve, compressed)
		if err != nil {
			t.Fatalf("decompression failed: %v", err)
		}

		if decompressed.X.Cmp(key.X) != 0 || decompressed.Y.Cmp(key.Y) != 0 {
			t.Error("decompressed key doesn't match original")
		}
	}
}

func TestUnsupportedCurve(t *testing.T) {
	if _, err := CurveFor(CurveID(0x7F)); err == nil {
		t.Error("expected error for unknown curve id")
	}
	if _, err := GenerateKeyPair(CurveID(0x7F)); err == nil {
		t.Error("expected error generating key on unknown curve")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	secret := make([]byte, 32)
	rand.Read(secret)
	salt := make([]byte, 32)
	rand.Read(salt)

	k1, err := DeriveKey(secret, salt, nil, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	k2, _ := DeriveKey(secret, salt, nil, 32)

	if !bytes.Equal(k1, k2) {
		t.Error("same inputs should derive the same key")
	}

	otherSalt := make([]byte, 32)
	rand.Read(otherSalt)
	k3, _ := DeriveKey(secret, otherSalt, nil, 32)
	if bytes.Equal(k1, k3) {
		t.Error("different salts should derive different keys")
	}
}

func TestAESGCMEncryptDecrypt(t *testing.T) {
	key := make([]byte, AESKeySize)
	rand.Read(key)

	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("failed to generate nonce: %v", err)
	}

	plaintext := []byte("layer payload bytes")
	aad := []byte{0x01}

	ciphertext, err := EncryptAESGCM(key, nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("encryption failed: %v", err)
	}

	decrypted, err := DecryptAESGCM(key, nonce, ciphertext, aad)
	if err != nil {
		t.Fatalf("decryption failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted doesn't match: got %q, want %q", decrypted, plaintext)
	}

	// Wrong AAD must fail
	if _, err := DecryptAESGCM(key, nonce, ciphertext, []byte{0x00}); err == nil {
		t.Error("expected decryption to fail with different additional data")
	}
}

func TestGMACKeyAndDataSensitivity(t *testing.T) {
	key := make([]byte, AESKeySize)
	rand.Read(key)
	data := []byte("policy and ciphertext digest")

	t1, err := GMAC(key, data)
	if err != nil {
		t.Fatalf("GMAC failed: %v", err)
	}
	t2, _ := GMAC(key, data)
	if !bytes.Equal(t1, t2) {
		t.Error("GMAC should be deterministic")
	}

	otherKey := make([]byte, AESKeySize)
	rand.Read(otherKey)
	t3, _ := GMAC(otherKey, data)
	if bytes.Equal(t1, t3) {
		t.Error("different keys should produce different tags")
	}

	t4, _ := GMAC(key, append([]byte{0x00}, data...))
	if bytes.Equal(t1, t4) {
		t.Error("different data should produce different tags")
	}
}

func TestSignVerifyECDSA(t *testing.T) {
	key, _ := GenerateKeyPair(CurveP256)
	hash := HashForSigning([]byte("signed layer bytes"))

	sig, err := SignECDSA(key, hash)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	if len(sig) != SignatureSize(CurveP256) {
		t.Errorf("signature size: got %d, want %d", len(sig), SignatureSize(CurveP256))
	}

	if !VerifyECDSA(&key.PublicKey, hash, sig) {
		t.Error("signature should verify")
	}

	sig[0] ^= 0xFF
	if VerifyECDSA(&key.PublicKey, hash, sig) {
		t.Error("tampered signature should not verify")
	}
}

func TestRSAWrapUnwrap(t *testing.T) {
	key, err := GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	layerKey := make([]byte, AESKeySize)
	rand.Read(layerKey)

	wrapped, err := WrapKeyRSA(layerKey, &key.PublicKey)
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}

	unwrapped, err := UnwrapKeyRSA(wrapped, key)
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if !bytes.Equal(unwrapped, layerKey) {
		t.Error("unwrapped key doesn't match original")
	}

	other, _ := GenerateRSAKeyPair(2048)
	if _, err := UnwrapKeyRSA(wrapped, other); err == nil {
		t.Error("unwrap with wrong key should fail")
	}
}

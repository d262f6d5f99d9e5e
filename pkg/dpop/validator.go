package dpop

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// header is the JOSE header of a proof. The public key is always embedded;
// validation never consults an external key registry.
type header struct {
	Typ string `json:"typ"`
	Alg string `json:"alg"`
	JWK *jwk   `json:"jwk"`
}

type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
}

// Validator checks proofs against an expected request, a freshness window,
// and a replay cache. Safe for concurrent use.
type Validator struct {
	skew   time.Duration
	replay *ReplayCache

	// now overrides the clock, for tests.
	now func() time.Time
}

// NewValidator creates a proof validator. A zero skew uses
// DefaultSkewTolerance; a nil cache disables replay detection (tests only).
func NewValidator(skew time.Duration, replay *ReplayCache) *Validator {
	if skew <= 0 {
		skew = DefaultSkewTolerance
	}
	return &Validator{skew: skew, replay: replay, now: time.Now}
}

// Validate checks a proof against the expected method and URL.
func (v *Validator) Validate(proof, method, rawURL string) error {
	return v.validate(proof, method, rawURL, nil)
}

// ValidateBound additionally requires the proof's ath claim to match the
// presented chain bytes.
func (v *Validator) ValidateBound(proof, method, rawURL string, chain []byte) error {
	return v.validate(proof, method, rawURL, &chainBinding{hash: HashChain(chain)})
}

type chainBinding struct {
	hash string
}

func (v *Validator) validate(proof, method, rawURL string, binding *chainBinding) error {
	claims, err := v.check(proof, method, rawURL)
	if err != nil {
		return err
	}

	// The binding is checked before the nonce is recorded, so a proof that
	// fails only here can be retried against the right chain.
	if binding != nil {
		if subtle.ConstantTimeCompare([]byte(claims.ChainHash), []byte(binding.hash)) != 1 {
			return proofError(KindChainMismatch, "proof not bound to presented chain")
		}
	}

	if v.replay != nil {
		seen, err := v.replay.Seen(claims.Nonce)
		if err != nil {
			return err
		}
		if seen {
			return proofError(KindReplayed, "nonce already used")
		}
	}

	return nil
}

// check runs every stateless validation step. It never touches the replay
// cache; the caller records the nonce once all checks pass.
func (v *Validator) check(proof, method, rawURL string) (*Claims, error) {
	if proof == "" {
		return nil, proofError(KindMalformed, "empty proof")
	}
	if len(proof) > maxProofSize {
		return nil, proofError(KindMalformed, "proof exceeds maximum size")
	}

	parts := strings.Split(proof, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, proofError(KindMalformed, "proof must be a compact JWS with 3 parts")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, proofError(KindMalformed, "bad header encoding")
	}
	var hdr header
	if err := json.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, proofError(KindMalformed, "bad header json")
	}

	if hdr.Typ != TypeDPoP {
		return nil, proofError(KindMalformed, `typ must be "dpop+jwt"`)
	}
	// The algorithm is pinned; the header value is checked, never trusted
	// to select the verification routine.
	if hdr.Alg != AlgEdDSA {
		return nil, proofError(KindMalformed, `alg must be "EdDSA"`)
	}

	publicKey, err := publicKeyFromJWK(hdr.JWK)
	if err != nil {
		return nil, err
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, proofError(KindMalformed, "bad signature encoding")
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, proofError(KindInvalidSignature, "wrong signature size")
	}

	signingInput := parts[0] + "." + parts[1]
	if !ed25519.Verify(publicKey, []byte(signingInput), signature) {
		return nil, proofError(KindInvalidSignature, "signature verification failed")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, proofError(KindMalformed, "bad payload encoding")
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, proofError(KindMalformed, "bad payload json")
	}

	if claims.Method != method {
		return nil, proofError(KindMethodMismatch, "htm does not match request method")
	}

	proofURL, err := NormalizeURL(claims.URL)
	if err != nil {
		return nil, err
	}
	requestURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if proofURL != requestURL {
		return nil, proofError(KindURLMismatch, "htu does not match request url")
	}

	now := v.now().Unix()
	if claims.IssuedAt <= 0 {
		return nil, proofError(KindStale, "iat must be positive")
	}
	skew := int64(v.skew.Seconds())
	if now-claims.IssuedAt > skew {
		return nil, proofError(KindStale, "proof issued too long ago")
	}
	if claims.IssuedAt-now > skew {
		return nil, proofError(KindStale, "proof issued in the future")
	}

	return &claims, nil
}

func publicKeyFromJWK(k *jwk) (ed25519.PublicKey, error) {
	if k == nil {
		return nil, proofError(KindMalformed, "jwk is required in header")
	}
	if k.Kty != "OKP" || k.Crv != "Ed25519" {
		return nil, proofError(KindMalformed, "jwk must be an Ed25519 OKP key")
	}

	raw, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, proofError(KindMalformed, "bad jwk x encoding")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, proofError(KindMalformed, "wrong public key size")
	}

	return ed25519.PublicKey(raw), nil
}

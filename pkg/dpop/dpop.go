// Package dpop binds a presented trust chain to a specific HTTP request
// using a client-held Ed25519 signing key, per the RFC 9449 proof-of-
// possession pattern. A proof is a compact JWS carrying the caller's
// public key, the HTTP method and normalized URL, an issued-at timestamp,
// a single-use nonce, and optionally a hash binding the proof to the
// presented chain.
package dpop

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"time"
)

const (
	// TypeDPoP is the required typ header value.
	TypeDPoP = "dpop+jwt"

	// AlgEdDSA is the only permitted signing algorithm. Fixed, never taken
	// from the proof header, to rule out algorithm confusion.
	AlgEdDSA = "EdDSA"

	// DefaultSkewTolerance bounds proof freshness. The replay cache
	// eviction horizon is tied to the same value.
	DefaultSkewTolerance = 300 * time.Second

	// maxProofSize caps accepted proof bytes.
	maxProofSize = 8 * 1024
)

// Claims is the payload of a proof JWS.
type Claims struct {
	// Nonce is a single-use identifier for replay detection.
	Nonce string `json:"jti"`

	// Method is the HTTP method, matched case-sensitively.
	Method string `json:"htm"`

	// URL is the normalized request URL.
	URL string `json:"htu"`

	// IssuedAt is the proof creation time in unix seconds.
	IssuedAt int64 `json:"iat"`

	// ChainHash optionally binds the proof to a presented chain:
	// base64url(SHA-256(serialized terminal container)).
	ChainHash string `json:"ath,omitempty"`
}

// HashChain computes the chain binding value for serialized chain bytes.
func HashChain(chain []byte) string {
	sum := sha256.Sum256(chain)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NormalizeURL canonicalizes a request URL for proof comparison:
// lowercased scheme and host, default ports stripped, query and fragment
// dropped, empty path normalized to "/".
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", proofError(KindMalformed, "url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", proofError(KindMalformed, "unparseable url")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", proofError(KindMalformed, "url must have scheme and host")
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())

	if port := parsed.Port(); port != "" {
		isDefault := (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
		if !isDefault {
			host = host + ":" + port
		}
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	return scheme + "://" + host + path, nil
}

package dpop

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// Generator produces proofs with a client-held Ed25519 key. Safe for
// concurrent use; each proof gets a fresh nonce.
type Generator struct {
	privateKey ed25519.PrivateKey

	// now overrides the clock, for tests.
	now func() time.Time
}

// NewGenerator creates a proof generator around a private key.
func NewGenerator(privateKey ed25519.PrivateKey) *Generator {
	return &Generator{privateKey: privateKey, now: time.Now}
}

// ProofOption customizes a generated proof.
type ProofOption func(*Claims)

// WithChainHash binds the proof to serialized chain bytes via the ath
// claim.
func WithChainHash(chain []byte) ProofOption {
	return func(c *Claims) {
		c.ChainHash = HashChain(chain)
	}
}

// Generate creates a signed proof for an HTTP method and URL. The caller's
// public key is embedded in the JWS header as a JWK; validators verify the
// signature against that embedded key.
func (g *Generator) Generate(method, rawURL string, opts ...ProofOption) (string, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	jwk := jose.JSONWebKey{
		Key:       g.privateKey.Public().(ed25519.PublicKey),
		Algorithm: string(jose.EdDSA),
	}
	signerOpts := (&jose.SignerOptions{}).
		WithType(TypeDPoP).
		WithHeader("jwk", jwk)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: g.privateKey}, signerOpts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	claims := Claims{
		Nonce:    uuid.New().String(),
		Method:   method,
		URL:      normalized,
		IssuedAt: g.now().Unix(),
	}
	for _, opt := range opts {
		opt(&claims)
	}

	proof, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize proof: %w", err)
	}

	return proof, nil
}

// SignRequest generates a proof for req and sets the DPoP header. The URL
// is taken from the request URL, never the Host header.
func (g *Generator) SignRequest(req *http.Request, opts ...ProofOption) error {
	proof, err := g.Generate(req.Method, req.URL.String(), opts...)
	if err != nil {
		return err
	}
	req.Header.Set("DPoP", proof)
	return nil
}

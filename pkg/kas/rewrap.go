package kas

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arkavo-org/trustchain/pkg/container"
	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// rewrapRequest is the wire form of a rewrap call. The key access service
// re-derives the layer key from the ephemeral public key and returns it
// wrapped with the client's RSA public key.
type rewrapRequest struct {
	Version      uint8  `json:"version"`
	Curve        uint8  `json:"curve"`
	EphemeralKey string `json:"ephemeralKey"` // base64 compressed point
	Policy       string `json:"policy"`       // base64 claims body
	ClientKey    string `json:"clientKey"`    // base64 PKIX RSA public key
}

type rewrapResponse struct {
	WrappedKey string `json:"wrappedKey"` // base64 RSA-OAEP wrapped layer key
}

// RewrapClient obtains layer keys from a key access service. It implements
// the chain verifier's KeyProvider for issuer-held layers.
type RewrapClient struct {
	// URL is the rewrap endpoint.
	URL string

	// RewrapKey is the client's RSA key pair for the wrap transport.
	RewrapKey *rsa.PrivateKey

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

// NewRewrapClient creates a rewrap client with a fresh transport key pair.
func NewRewrapClient(url string) (*RewrapClient, error) {
	key, err := crypto.GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, err
	}
	return &RewrapClient{URL: url, RewrapKey: key}, nil
}

func (c *RewrapClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// LayerKey requests the symmetric key for one container layer.
func (c *RewrapClient) LayerKey(ctx context.Context, cont *container.Container) ([]byte, error) {
	clientKeyDER, err := x509.MarshalPKIXPublicKey(&c.RewrapKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rewrap key: %w", err)
	}

	reqBody, err := json.Marshal(rewrapRequest{
		Version:      cont.Header.Version,
		Curve:        uint8(cont.Header.Curve),
		EphemeralKey: base64.StdEncoding.EncodeToString(cont.Header.EphemeralKey),
		Policy:       base64.StdEncoding.EncodeToString(cont.Policy.Body),
		ClientKey:    base64.StdEncoding.EncodeToString(clientKeyDER),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewrapFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, ErrRewrapDenied
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRewrapFailed, resp.StatusCode)
	}

	var rr rewrapResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewrapFailed, err)
	}

	wrapped, err := base64.StdEncoding.DecodeString(rr.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad wrapped key encoding", ErrRewrapFailed)
	}

	key, err := crypto.UnwrapKeyRSA(wrapped, c.RewrapKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap: %v", ErrRewrapFailed, err)
	}
	if len(key) != crypto.AESKeySize {
		return nil, fmt.Errorf("%w: unexpected key size", ErrRewrapFailed)
	}

	return key, nil
}

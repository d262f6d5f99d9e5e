// Package kas implements the key access boundary for chain layers: local
// ECDH derivation for client-held keys and an HTTP rewrap flow for layers
// whose static private key is held by the issuer's key access service.
// The plaintext layer key never crosses the wire; the service returns it
// wrapped with the requesting client's RSA public key.
package kas

import (
	"context"
	"crypto/ecdsa"
	"errors"

	"github.com/arkavo-org/trustchain/pkg/container"
)

var (
	ErrMissingPrivateKey = errors.New("recipient private key is required")
	ErrRewrapFailed      = errors.New("rewrap request failed")
	ErrRewrapDenied      = errors.New("rewrap denied by key access service")
)

// LocalProvider derives layer keys with a locally held static private key.
type LocalProvider struct {
	PrivateKey *ecdsa.PrivateKey
}

// NewLocalProvider creates a provider around a recipient private key.
func NewLocalProvider(key *ecdsa.PrivateKey) *LocalProvider {
	return &LocalProvider{PrivateKey: key}
}

// LayerKey derives the symmetric key for a container layer.
func (p *LocalProvider) LayerKey(_ context.Context, c *container.Container) ([]byte, error) {
	if p.PrivateKey == nil {
		return nil, ErrMissingPrivateKey
	}
	return container.DeriveKey(c, p.PrivateKey)
}

// Package chain composes containers into layered trust chains and verifies
// them. A chain is an ordered sequence of containers where each outer
// container's plaintext is the serialized form of the one beneath it;
// the innermost plaintext is the terminal application payload.
//
// Chain lifecycle: Built -> SentToIssuer -> Issued -> Presented ->
// Verified | Rejected. Containers are write-once; renewal builds a fresh
// chain.
package chain

import (
	"fmt"

	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/container"
)

// DefaultMaxDepth bounds chain nesting unless configured otherwise.
const DefaultMaxDepth = 4

// Config holds chain-wide settings.
type Config struct {
	// MaxDepth is the maximum number of layers (default 4).
	MaxDepth int
}

func (c Config) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

// Link is a built container together with its nesting depth. Tracking
// depth at build time lets the builder reject over-deep chains before any
// cryptography runs.
type Link struct {
	Container *container.Container
	Depth     int
}

// Encode serializes the link's container.
func (l *Link) Encode() ([]byte, error) {
	return l.Container.Encode()
}

// Builder composes containers bottom-up.
type Builder struct {
	cfg Config
}

// NewBuilder creates a chain builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// CreateLeaf builds the innermost container around a terminal payload.
func (b *Builder) CreateLeaf(layer container.CreateConfig, claimSet claims.Set, payload []byte) (*Link, error) {
	if b.cfg.maxDepth() < 1 {
		return nil, ErrDepthExceeded
	}

	body, err := claimSet.Encode()
	if err != nil {
		return nil, err
	}

	c, err := container.Create(layer, body, payload, container.PayloadOpaque)
	if err != nil {
		return nil, err
	}

	return &Link{Container: c, Depth: 1}, nil
}

// Wrap builds a container whose payload is the serialized inner container.
func (b *Builder) Wrap(layer container.CreateConfig, claimSet claims.Set, inner *Link) (*Link, error) {
	if inner.Depth+1 > b.cfg.maxDepth() {
		return nil, fmt.Errorf("%w: %d layers, maximum %d", ErrDepthExceeded, inner.Depth+1, b.cfg.maxDepth())
	}

	body, err := claimSet.Encode()
	if err != nil {
		return nil, err
	}

	innerBytes, err := inner.Container.Encode()
	if err != nil {
		return nil, err
	}

	c, err := container.Create(layer, body, innerBytes, container.PayloadContainer)
	if err != nil {
		return nil, err
	}

	return &Link{Container: c, Depth: inner.Depth + 1}, nil
}

// CreateAuthorizationChain composes the standard two-layer client chain:
// a PE identity leaf wrapped in an NPE device attestation layer, ready for
// the issuer exchange. Side effects are confined to the device producer
// (first-use creation of the persisted device id).
func (b *Builder) CreateAuthorizationChain(
	identity claims.Set,
	device *claims.DeviceProducer,
	payload []byte,
	leafLayer, wrapLayer container.CreateConfig,
) (*Link, error) {
	leaf, err := b.CreateLeaf(leafLayer, identity, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity layer: %w", err)
	}

	deviceClaims, err := device.Claims()
	if err != nil {
		return nil, fmt.Errorf("failed to produce device claims: %w", err)
	}

	intermediate, err := b.Wrap(wrapLayer, deviceClaims, leaf)
	if err != nil {
		return nil, fmt.Errorf("failed to build device layer: %w", err)
	}

	return intermediate, nil
}

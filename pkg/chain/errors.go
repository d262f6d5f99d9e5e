package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrDepthExceeded indicates a chain deeper than the configured bound.
	// Enforced at build time before any cryptography runs, and again at
	// verification.
	ErrDepthExceeded = errors.New("chain depth exceeds configured maximum")

	// ErrNoProvider indicates no key provider matched a layer's locator.
	ErrNoProvider = errors.New("no key provider for layer locator")

	// ErrRemotePolicy indicates a chain layer carried its claims by
	// reference; chain layers must embed claims.
	ErrRemotePolicy = errors.New("chain layer claims must be embedded")
)

// VerificationError wraps a failure at a specific chain layer. The layer
// index (0 = outermost) is for operator diagnostics only; user-visible
// failures are reduced to a bare authorization denial by the caller.
type VerificationError struct {
	Layer int
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("chain verification failed at layer %d: %v", e.Layer, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// ClaimError describes a claim set that failed a layer-specific rule.
type ClaimError struct {
	Reason string
}

func (e *ClaimError) Error() string {
	return "invalid layer claims: " + e.Reason
}

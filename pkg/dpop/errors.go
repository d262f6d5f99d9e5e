package dpop

import (
	"errors"
	"fmt"
)

// ProofErrorKind classifies proof validation failures.
type ProofErrorKind string

const (
	KindMalformed        ProofErrorKind = "malformed"
	KindInvalidSignature ProofErrorKind = "invalid_signature"
	KindStale            ProofErrorKind = "stale"
	KindReplayed         ProofErrorKind = "replayed"
	KindMethodMismatch   ProofErrorKind = "method_mismatch"
	KindURLMismatch      ProofErrorKind = "url_mismatch"
	KindChainMismatch    ProofErrorKind = "chain_mismatch"
)

// ProofError describes why a proof was rejected.
type ProofError struct {
	Kind   ProofErrorKind
	Detail string
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("dpop proof rejected (%s): %s", e.Kind, e.Detail)
}

func proofError(kind ProofErrorKind, detail string) *ProofError {
	return &ProofError{Kind: kind, Detail: detail}
}

var (
	// ErrInvalidNonce indicates an empty or oversized proof nonce.
	ErrInvalidNonce = errors.New("invalid nonce: must be non-empty and under 1KB")

	// ErrCacheFull indicates the replay cache hit its entry bound.
	ErrCacheFull = errors.New("replay cache full")
)

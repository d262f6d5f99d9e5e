package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/container"
	"github.com/arkavo-org/trustchain/pkg/crypto"
)

// KeyProvider supplies the symmetric key for one container layer. Local
// derivation and key-access rewrap both satisfy this; the split between
// locally-derivable and issuer-only-derivable layers is the pluggable
// trust boundary.
type KeyProvider interface {
	LayerKey(ctx context.Context, c *container.Container) ([]byte, error)
}

// TrustAnchors maps layer key locators to their key providers.
type TrustAnchors struct {
	// Providers is keyed by locator body.
	Providers map[string]KeyProvider

	// Default handles locators with no explicit entry.
	Default KeyProvider
}

func (t TrustAnchors) provider(locator string) (KeyProvider, error) {
	if p, ok := t.Providers[locator]; ok {
		return p, nil
	}
	if t.Default != nil {
		return t.Default, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoProvider, locator)
}

// Rules are the per-layer claim validation rules. Each layer's claims are
// validated in isolation; the chain is valid only if every layer is.
type Rules struct {
	// Audience the authorization layer must name.
	Audience string

	// RecognizedRoles the authorization layer may carry. Empty recognizes
	// any role.
	RecognizedRoles []string

	// MinAuthLevel the identity layer must meet.
	MinAuthLevel claims.AuthLevel

	// AcceptablePostures for the device layer. Empty accepts Secure only.
	AcceptablePostures []claims.SecurityPosture

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (r Rules) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Rules) postureAcceptable(p claims.SecurityPosture) bool {
	if len(r.AcceptablePostures) == 0 {
		return p == claims.PostureSecure
	}
	for _, ok := range r.AcceptablePostures {
		if p == ok {
			return true
		}
	}
	return false
}

func (r Rules) roleRecognized(role string) bool {
	if len(r.RecognizedRoles) == 0 {
		return role != ""
	}
	for _, ok := range r.RecognizedRoles {
		if role == ok {
			return true
		}
	}
	return false
}

// Result is the outcome of a fully verified chain.
type Result struct {
	// Layers holds each layer's claims, outermost first.
	Layers []claims.Set

	// Payload is the terminal application payload.
	Payload []byte
}

// Verifier unwraps and validates chains top-down.
type Verifier struct {
	cfg     Config
	anchors TrustAnchors
	rules   Rules
	log     *slog.Logger
}

// NewVerifier creates a chain verifier.
func NewVerifier(cfg Config, anchors TrustAnchors, rules Rules) *Verifier {
	return &Verifier{cfg: cfg, anchors: anchors, rules: rules, log: slog.Default()}
}

// WithLogger sets the operator-facing logger.
func (v *Verifier) WithLogger(log *slog.Logger) *Verifier {
	v.log = log
	return v
}

// Verify unwraps the chain outermost-first, validating each layer's policy
// binding and claims. It fails fast on the first invalid or malformed
// layer; the returned error carries the failing layer index for operators
// and must not be surfaced to end users. No claims from a partially
// verified chain are ever returned.
func (v *Verifier) Verify(ctx context.Context, outer *container.Container) (*Result, error) {
	result := &Result{}
	current := outer

	for layer := 0; ; layer++ {
		if layer >= v.cfg.maxDepth() {
			return nil, v.fail(layer, ErrDepthExceeded)
		}

		provider, err := v.anchors.provider(current.Header.Locator.Body)
		if err != nil {
			return nil, v.fail(layer, err)
		}

		key, err := provider.LayerKey(ctx, current)
		if err != nil {
			return nil, v.fail(layer, err)
		}

		// Open verifies the policy binding before decrypting, so the claims
		// below are authenticated before they are parsed or judged.
		plaintext, err := container.Open(current, key)
		crypto.Zeroize(key)
		if err != nil {
			return nil, v.fail(layer, err)
		}

		claimSet, err := layerClaims(current)
		if err != nil {
			return nil, v.fail(layer, err)
		}

		if err := v.validateClaims(claimSet); err != nil {
			return nil, v.fail(layer, err)
		}

		result.Layers = append(result.Layers, claimSet)

		// The discriminator decides nesting. A terminal payload that merely
		// resembles container bytes stays opaque.
		if current.Payload.Type == container.PayloadOpaque {
			result.Payload = plaintext
			return result, nil
		}

		inner, err := container.Decode(plaintext)
		if err != nil {
			return nil, v.fail(layer+1, err)
		}
		current = inner
	}
}

// VerifyBytes decodes and verifies a serialized chain.
func (v *Verifier) VerifyBytes(ctx context.Context, data []byte) (*Result, error) {
	outer, err := container.Decode(data)
	if err != nil {
		return nil, v.fail(0, err)
	}
	return v.Verify(ctx, outer)
}

func (v *Verifier) fail(layer int, err error) error {
	v.log.Warn("chain verification failed",
		"layer", layer,
		"error", err)
	return &VerificationError{Layer: layer, Err: err}
}

// layerClaims extracts and decodes a layer's embedded claim set.
func layerClaims(c *container.Container) (claims.Set, error) {
	if c.Policy.Type != container.PolicyEmbedded {
		return claims.Set{}, ErrRemotePolicy
	}
	return claims.Decode(c.Policy.Body)
}

// validateClaims applies the layer-specific rules for a claim kind.
func (v *Verifier) validateClaims(s claims.Set) error {
	switch s.Kind {
	case claims.KindAuthorization:
		a := s.Authorization
		if a.Audience != v.rules.Audience {
			return &ClaimError{Reason: "audience mismatch"}
		}
		if !v.rules.now().Before(time.Unix(a.ExpiresAt, 0)) {
			return &ClaimError{Reason: "authorization expired"}
		}
		if !v.rules.roleRecognized(a.Role) {
			return &ClaimError{Reason: "role not recognized"}
		}

	case claims.KindNPE:
		n := s.NPE
		if !claims.ValidDeviceID(n.DeviceID) {
			return &ClaimError{Reason: "device id malformed"}
		}
		if !v.rules.postureAcceptable(n.SecurityPosture) {
			return &ClaimError{Reason: "security posture rejected: " + n.SecurityPosture.String()}
		}

	case claims.KindPE:
		p := s.PE
		if p.UserID == "" {
			return &ClaimError{Reason: "empty user id"}
		}
		if !p.AuthLevel.Meets(v.rules.MinAuthLevel) {
			return &ClaimError{Reason: "auth level below policy minimum"}
		}

	default:
		return &ClaimError{Reason: "unknown claim kind"}
	}

	return nil
}

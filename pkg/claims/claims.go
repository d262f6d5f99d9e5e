// Package claims defines the typed claim sets carried by trust chain layers
// and the producers that create them. Claims are a tagged union, not a type
// hierarchy: every serialized claim set carries an explicit kind tag and is
// dispatched on it.
package claims

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind tags a claim set variant.
type Kind uint8

const (
	// KindPE is a Person-Entity identity claim set (innermost layer).
	KindPE Kind = 1
	// KindNPE is a Non-Person-Entity device attestation claim set.
	KindNPE Kind = 2
	// KindAuthorization is an issuer-granted authorization claim set
	// (outermost layer).
	KindAuthorization Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindPE:
		return "pe"
	case KindNPE:
		return "npe"
	case KindAuthorization:
		return "authorization"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrUnknownKind   = errors.New("unknown claim kind")
	ErrMalformedBody = errors.New("malformed claims body")
)

// AuthLevel is the assurance level of an authenticated principal.
type AuthLevel string

const (
	AuthLevelPassword  AuthLevel = "password"
	AuthLevelMFA       AuthLevel = "mfa"
	AuthLevelBiometric AuthLevel = "biometric"
)

// rank orders assurance levels; unknown levels rank below all known ones.
func (l AuthLevel) rank() int {
	switch l {
	case AuthLevelPassword:
		return 1
	case AuthLevelMFA:
		return 2
	case AuthLevelBiometric:
		return 3
	default:
		return 0
	}
}

// Meets reports whether the level satisfies a required minimum.
func (l AuthLevel) Meets(minimum AuthLevel) bool {
	return l.rank() >= minimum.rank()
}

// SecurityPosture classifies the integrity state of a device.
type SecurityPosture uint8

const (
	PostureUnknown SecurityPosture = iota
	PostureSecure
	PostureCompromised
	PostureDebugAttached
)

func (p SecurityPosture) String() string {
	switch p {
	case PostureSecure:
		return "secure"
	case PostureCompromised:
		return "compromised"
	case PostureDebugAttached:
		return "debug-attached"
	default:
		return "unknown"
	}
}

// PEClaims identifies an already-authenticated person.
type PEClaims struct {
	UserID    string    `cbor:"1,keyasint"`
	AuthLevel AuthLevel `cbor:"2,keyasint"`
	IssuedAt  int64     `cbor:"3,keyasint"` // unix seconds
}

// NPEClaims attests a device and application instance.
type NPEClaims struct {
	Platform        string          `cbor:"1,keyasint"`
	DeviceID        string          `cbor:"2,keyasint"` // hex, 32 bytes decoded
	AppVersion      string          `cbor:"3,keyasint"`
	SecurityPosture SecurityPosture `cbor:"4,keyasint"`
}

// AuthorizationClaims is the issuer-granted outer envelope.
type AuthorizationClaims struct {
	Role      string `cbor:"1,keyasint"`
	Audience  string `cbor:"2,keyasint"`
	ExpiresAt int64  `cbor:"3,keyasint"` // unix seconds
}

// Set is one claim set with its kind tag. Exactly one of the variant
// fields is non-nil, matching Kind.
type Set struct {
	Kind          Kind
	PE            *PEClaims
	NPE           *NPEClaims
	Authorization *AuthorizationClaims
}

// envelope is the serialized form: kind tag plus the variant body.
type envelope struct {
	Kind Kind            `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// Encode serializes the claim set as a tagged CBOR envelope.
func (s Set) Encode() ([]byte, error) {
	var body any
	switch s.Kind {
	case KindPE:
		body = s.PE
	case KindNPE:
		body = s.NPE
	case KindAuthorization:
		body = s.Authorization
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(s.Kind))
	}
	if body == nil {
		return nil, fmt.Errorf("%w: nil %s variant", ErrMalformedBody, s.Kind)
	}

	bodyBytes, err := cbor.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s claims: %w", s.Kind, err)
	}

	return cbor.Marshal(envelope{Kind: s.Kind, Body: bodyBytes})
}

// Decode parses a tagged CBOR claims envelope.
func Decode(data []byte) (Set, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Set{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	s := Set{Kind: env.Kind}
	switch env.Kind {
	case KindPE:
		s.PE = &PEClaims{}
		if err := cbor.Unmarshal(env.Body, s.PE); err != nil {
			return Set{}, fmt.Errorf("%w: pe body: %v", ErrMalformedBody, err)
		}
	case KindNPE:
		s.NPE = &NPEClaims{}
		if err := cbor.Unmarshal(env.Body, s.NPE); err != nil {
			return Set{}, fmt.Errorf("%w: npe body: %v", ErrMalformedBody, err)
		}
	case KindAuthorization:
		s.Authorization = &AuthorizationClaims{}
		if err := cbor.Unmarshal(env.Body, s.Authorization); err != nil {
			return Set{}, fmt.Errorf("%w: authorization body: %v", ErrMalformedBody, err)
		}
	default:
		return Set{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(env.Kind))
	}

	return s, nil
}

// NewPE wraps a person claim set.
func NewPE(c PEClaims) Set { return Set{Kind: KindPE, PE: &c} }

// NewNPE wraps a device claim set.
func NewNPE(c NPEClaims) Set { return Set{Kind: KindNPE, NPE: &c} }

// NewAuthorization wraps an authorization claim set.
func NewAuthorization(c AuthorizationClaims) Set {
	return Set{Kind: KindAuthorization, Authorization: &c}
}

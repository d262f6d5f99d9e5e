package container

import "errors"

var (
	// ErrFormat indicates structurally malformed container bytes.
	ErrFormat = errors.New("malformed container")

	// ErrUnsupportedVersion indicates an unrecognized wire format tag.
	ErrUnsupportedVersion = errors.New("unsupported container format version")

	// ErrIntegrity indicates a policy binding or payload tag mismatch.
	// Always terminal: no fallback, no partial trust.
	ErrIntegrity = errors.New("container integrity check failed")

	// ErrTruncated indicates the input ended before the structure did.
	ErrTruncated = errors.New("container data truncated")

	// ErrPayloadTooLarge indicates the payload exceeds the 24-bit length field.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size (16MB)")

	// ErrSignature indicates an invalid creator signature.
	ErrSignature = errors.New("creator signature is invalid")

	ErrMissingRecipientKey = errors.New("recipient public key is required")
	ErrMissingLocator      = errors.New("key locator is required")
	ErrMissingKey          = errors.New("symmetric key is required")
)

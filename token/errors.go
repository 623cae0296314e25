package token

import "errors"

var (
	// ErrConfig reports missing or invalid signing configuration.
	ErrConfig = errors.New("token codec misconfigured")
	// ErrExpiredToken is returned when the token's expiry has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidSignature is returned when the signature does not verify
	// with the secret for the requested kind.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrMalformedToken is returned when the token cannot be parsed into the
	// expected shape.
	ErrMalformedToken = errors.New("token malformed")
)

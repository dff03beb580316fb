package auth

import "errors"

// Credential resolution and authorization failures. Handlers map these
// to stable JSON error codes; none of them are retriable by the system.
var (
	// ErrMalformedCredential indicates a missing or malformed
	// "Bearer <token>" header value.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrInvalidCredential indicates the presented token matched no
	// known credential kind.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrRevokedSession indicates a structurally valid access token
	// whose backing session row is revoked or missing.
	ErrRevokedSession = errors.New("session revoked or unknown")

	// ErrExpiredCredential indicates an API key past its expiry.
	ErrExpiredCredential = errors.New("credential expired")

	// ErrForbidden indicates the credential kind is not accepted on
	// the requested route.
	ErrForbidden = errors.New("credential kind not allowed")

	// ErrTargetUserRequired indicates a master-key call to a
	// user-scoped route without an explicit target user.
	ErrTargetUserRequired = errors.New("target user required for master key")
)

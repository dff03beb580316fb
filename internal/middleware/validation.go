package middleware

import (
	"errors"
	"regexp"
)

// Validation limits.
const (
	// MaxProviderLength is the maximum length for a provider name.
	MaxProviderLength = 32

	// MaxKeyNameLength is the maximum length for an API key name.
	MaxKeyNameLength = 100

	// MaxProviderTokenLength bounds provider access tokens. OAuth
	// tokens vary widely; anything beyond this is garbage.
	MaxProviderTokenLength = 4096

	// MaxUserIDLength bounds user ID path/query parameters.
	MaxUserIDLength = 64
)

// Validation errors.
var (
	ErrProviderInvalid      = errors.New("provider name is invalid")
	ErrProviderTokenTooLong = errors.New("provider token exceeds maximum length")
	ErrKeyNameTooLong       = errors.New("key name exceeds maximum length")
	ErrUserIDInvalid        = errors.New("user ID is invalid")
)

// validProviderPattern matches valid provider names.
// Allowed: lowercase letters, digits, hyphen.
var validProviderPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// validUserIDPattern matches user ID parameters (UUIDs and ULIDs).
var validUserIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// ValidateProvider validates a provider name from a login request.
func ValidateProvider(provider string) error {
	if provider == "" || len(provider) > MaxProviderLength {
		return ErrProviderInvalid
	}
	if !validProviderPattern.MatchString(provider) {
		return ErrProviderInvalid
	}
	return nil
}

// ValidateProviderToken bounds the size of a provider access token.
func ValidateProviderToken(token string) error {
	if len(token) > MaxProviderTokenLength {
		return ErrProviderTokenTooLong
	}
	return nil
}

// ValidateKeyName validates a user-supplied API key name.
func ValidateKeyName(name string) error {
	if len(name) > MaxKeyNameLength {
		return ErrKeyNameTooLong
	}
	return nil
}

// ValidateUserIDParam validates a user ID supplied as a path or query
// parameter before it reaches the database.
func ValidateUserIDParam(id string) error {
	if id == "" || len(id) > MaxUserIDLength {
		return ErrUserIDInvalid
	}
	if !validUserIDPattern.MatchString(id) {
		return ErrUserIDInvalid
	}
	return nil
}

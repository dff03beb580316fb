package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access token verification errors.
var (
	// ErrTokenExpired indicates the token's exp has elapsed.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid indicates the token failed signature or
	// structural validation.
	ErrTokenInvalid = errors.New("invalid access token")
)

// AccessClaims are the claims carried by a gateway access token.
// Subject is the user ID and ID (jti) is the backing session row.
type AccessClaims struct {
	APIKeyID string `json:"api_key_id"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies HS256 access tokens.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a TokenSigner with the given secret and
// access-token TTL.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the signer's clock. Intended for tests.
func (s *TokenSigner) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TTL returns the configured access-token lifetime.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

// Sign mints a signed access token for the given user, key and session.
// Returns the token string and its expiry.
func (s *TokenSigner) Sign(userID, apiKeyID, jti string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &AccessClaims{
		APIKeyID: apiKeyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify parses and validates an access token, returning its claims.
// Structural fields (sub, api_key_id, jti, exp) must all be present.
func (s *TokenSigner) Verify(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.ID == "" || claims.APIKeyID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}

	return claims, nil
}

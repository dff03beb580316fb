package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anyllm/gateway/internal/model"
)

// SessionStore looks up session rows for access-token liveness checks.
// Implementations return (nil, nil) when no row matches.
type SessionStore interface {
	LookupSession(ctx context.Context, jti string) (*model.SessionToken, error)
}

// KeyStore looks up candidate API keys by visible prefix.
// Implementations return an empty slice when no key matches.
type KeyStore interface {
	LookupAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
}

// Resolver classifies the raw auth header value into a typed Principal.
// Classification is ordered cheapest-and-safest-first: constant-time
// master compare, then signature verification with a session liveness
// lookup, then the API key hash check.
type Resolver struct {
	masterKey string
	signer    *TokenSigner
	sessions  SessionStore
	keys      KeyStore
	now       func() time.Time
}

// NewResolver creates a Resolver. masterKey may be empty, in which case
// master classification is disabled.
func NewResolver(masterKey string, signer *TokenSigner, sessions SessionStore, keys KeyStore) *Resolver {
	return &Resolver{
		masterKey: masterKey,
		signer:    signer,
		sessions:  sessions,
		keys:      keys,
		now:       time.Now,
	}
}

// SetClock overrides the resolver's clock. Intended for tests.
func (r *Resolver) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMalformedCredential
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMalformedCredential
	}
	return strings.TrimSpace(token), nil
}

// Resolve turns a raw header value into a Principal or fails with one
// of the credential errors.
func (r *Resolver) Resolve(ctx context.Context, header string) (*model.Principal, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	if r.masterKey != "" && ConstantTimeEquals(token, r.masterKey) {
		return &model.Principal{Kind: model.KindMaster, IsAdmin: true}, nil
	}

	// A structural check before any store access keeps garbage input
	// away from the session table.
	tokenExpired := false
	if looksLikeJWT(token) {
		claims, err := r.signer.Verify(token)
		switch {
		case err == nil:
			return r.resolveSession(ctx, claims)
		case errors.Is(err, ErrTokenExpired):
			// Fall through to the API key path, but remember the
			// expiry so the final error is accurate.
			tokenExpired = true
		default:
			// Signature/structure failure: fall through.
		}
	}

	principal, err := r.resolveAPIKey(ctx, token)
	if errors.Is(err, ErrInvalidCredential) && tokenExpired {
		return nil, ErrExpiredCredential
	}
	return principal, err
}

// resolveSession checks the jti of verified claims against stored
// session state. A revoked or missing row rejects the token even when
// its signature and exp are still valid; this is what makes logout
// effective before natural expiry.
func (r *Resolver) resolveSession(ctx context.Context, claims *AccessClaims) (*model.Principal, error) {
	session, err := r.sessions.LookupSession(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session == nil || session.IsRevoked() {
		return nil, ErrRevokedSession
	}
	if session.UserID != claims.Subject || session.APIKeyID != claims.APIKeyID {
		// Claims no longer match the stored row; do not trust either.
		return nil, ErrRevokedSession
	}

	return &model.Principal{
		Kind:      model.KindAccessToken,
		UserID:    claims.Subject,
		APIKeyID:  claims.APIKeyID,
		SessionID: claims.ID,
	}, nil
}

// resolveAPIKey verifies the token against stored key hashes.
func (r *Resolver) resolveAPIKey(ctx context.Context, token string) (*model.Principal, error) {
	parsed, err := ParseAPIKey(token)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	candidates, err := r.keys.LookupAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api keys: %w", err)
	}

	// Verify against each candidate key (handles prefix collisions).
	var matched *model.APIKey
	for _, key := range candidates {
		ok, err := VerifySecret(token, key.KeyHash)
		if err != nil {
			continue
		}
		if ok {
			matched = key
			break
		}
	}

	if matched == nil || !matched.Usable(r.now()) {
		return nil, ErrInvalidCredential
	}

	return &model.Principal{
		Kind:     model.KindAPIKey,
		UserID:   matched.UserID,
		APIKeyID: matched.ID,
	}, nil
}

// looksLikeJWT checks for the three-segment structure of a JWS compact
// serialization without doing any parsing.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

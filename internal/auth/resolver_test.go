package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anyllm/gateway/internal/model"
)

type fakeSessionStore struct {
	sessions map[string]*model.SessionToken
	err      error
}

func (s *fakeSessionStore) LookupSession(_ context.Context, jti string) (*model.SessionToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sessions[jti], nil
}

type fakeKeyStore struct {
	keys map[string][]*model.APIKey
	err  error
}

func (s *fakeKeyStore) LookupAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keys[prefix], nil
}

const testMasterKey = "sk-master-test-0123456789"

func newTestResolver(sessions *fakeSessionStore, keys *fakeKeyStore) (*Resolver, *TokenSigner) {
	if sessions == nil {
		sessions = &fakeSessionStore{}
	}
	if keys == nil {
		keys = &fakeKeyStore{}
	}
	signer := NewTokenSigner([]byte("resolver-test-secret"), 30*time.Minute)
	return NewResolver(testMasterKey, signer, sessions, keys), signer
}

func TestResolver_MasterKey(t *testing.T) {
	t.Parallel()

	resolver, _ := newTestResolver(nil, nil)

	principal, err := resolver.Resolve(context.Background(), "Bearer "+testMasterKey)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if principal.Kind != model.KindMaster {
		t.Errorf("Kind = %q, want master", principal.Kind)
	}
	if !principal.IsAdmin {
		t.Error("Master principal should be admin")
	}
	if principal.UserID != "" {
		t.Error("Master principal carries no user")
	}
}

func TestResolver_MalformedHeader(t *testing.T) {
	t.Parallel()

	resolver, _ := newTestResolver(nil, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no bearer prefix", testMasterKey},
		{"bearer only", "Bearer "},
		{"lowercase bearer", "bearer " + testMasterKey},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := resolver.Resolve(context.Background(), tt.header)
			if !errors.Is(err, ErrMalformedCredential) {
				t.Errorf("Expected ErrMalformedCredential, got: %v", err)
			}
		})
	}
}

func TestResolver_AccessToken(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessionStore{sessions: map[string]*model.SessionToken{}}
	resolver, signer := newTestResolver(sessions, nil)

	token, _, err := signer.Sign("user-1", "key-1", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	sessions.sessions["session-1"] = &model.SessionToken{
		ID:       "session-1",
		FamilyID: "session-1",
		UserID:   "user-1",
		APIKeyID: "key-1",
	}

	principal, err := resolver.Resolve(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if principal.Kind != model.KindAccessToken {
		t.Errorf("Kind = %q, want access_token", principal.Kind)
	}
	if principal.UserID != "user-1" || principal.APIKeyID != "key-1" || principal.SessionID != "session-1" {
		t.Errorf("Unexpected principal: %+v", principal)
	}
}

func TestResolver_AccessToken_RevokedOrUnknownSession(t *testing.T) {
	t.Parallel()

	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	tests := []struct {
		name    string
		session *model.SessionToken
	}{
		{"unknown jti", nil},
		{"revoked", &model.SessionToken{
			ID: "session-1", UserID: "user-1", APIKeyID: "key-1", RevokedAt: &revokedAt,
		}},
		{"user mismatch", &model.SessionToken{
			ID: "session-1", UserID: "someone-else", APIKeyID: "key-1",
		}},
		{"key mismatch", &model.SessionToken{
			ID: "session-1", UserID: "user-1", APIKeyID: "other-key",
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sessions := &fakeSessionStore{sessions: map[string]*model.SessionToken{}}
			resolver, signer := newTestResolver(sessions, nil)

			token, _, err := signer.Sign("user-1", "key-1", "session-1")
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}
			if tt.session != nil {
				sessions.sessions["session-1"] = tt.session
			}

			_, err = resolver.Resolve(context.Background(), "Bearer "+token)
			if !errors.Is(err, ErrRevokedSession) {
				t.Errorf("Expected ErrRevokedSession, got: %v", err)
			}
		})
	}
}

func TestResolver_ExpiredAccessToken(t *testing.T) {
	t.Parallel()

	resolver, signer := newTestResolver(nil, nil)

	past := time.Now().Add(-2 * time.Hour)
	signer.SetClock(func() time.Time { return past })
	token, _, err := signer.Sign("user-1", "key-1", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	signer.SetClock(time.Now)

	// An expired-but-authentic token must be reported as expired, not
	// merely invalid, even though it also fails the API key path.
	_, err = resolver.Resolve(context.Background(), "Bearer "+token)
	if !errors.Is(err, ErrExpiredCredential) {
		t.Errorf("Expected ErrExpiredCredential, got: %v", err)
	}
}

func TestResolver_APIKey(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	keys := &fakeKeyStore{keys: map[string][]*model.APIKey{
		generated.Prefix: {
			{ID: "key-1", UserID: "user-1", KeyHash: generated.Hash, IsActive: true},
		},
	}}
	resolver, _ := newTestResolver(nil, keys)

	principal, err := resolver.Resolve(context.Background(), "Bearer "+generated.Plaintext)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if principal.Kind != model.KindAPIKey {
		t.Errorf("Kind = %q, want api_key", principal.Kind)
	}
	if principal.UserID != "user-1" || principal.APIKeyID != "key-1" {
		t.Errorf("Unexpected principal: %+v", principal)
	}
}

func TestResolver_APIKey_PrefixCollision(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	decoy, err := HashSecret("some other key entirely")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	keys := &fakeKeyStore{keys: map[string][]*model.APIKey{
		generated.Prefix: {
			{ID: "decoy", UserID: "user-9", KeyHash: decoy, IsActive: true},
			{ID: "key-1", UserID: "user-1", KeyHash: generated.Hash, IsActive: true},
		},
	}}
	resolver, _ := newTestResolver(nil, keys)

	principal, err := resolver.Resolve(context.Background(), "Bearer "+generated.Plaintext)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if principal.APIKeyID != "key-1" {
		t.Errorf("Resolved wrong candidate: %+v", principal)
	}
}

func TestResolver_APIKey_Unusable(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	expired := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		key  *model.APIKey
	}{
		{"inactive", &model.APIKey{
			ID: "key-1", UserID: "user-1", KeyHash: generated.Hash, IsActive: false,
		}},
		{"expired", &model.APIKey{
			ID: "key-1", UserID: "user-1", KeyHash: generated.Hash, IsActive: true, ExpiresAt: &expired,
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			keys := &fakeKeyStore{keys: map[string][]*model.APIKey{
				generated.Prefix: {tt.key},
			}}
			resolver, _ := newTestResolver(nil, keys)

			_, err := resolver.Resolve(context.Background(), "Bearer "+generated.Plaintext)
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Expected ErrInvalidCredential, got: %v", err)
			}
		})
	}
}

func TestResolver_UnknownCredential(t *testing.T) {
	t.Parallel()

	resolver, _ := newTestResolver(nil, nil)

	_, err := resolver.Resolve(context.Background(), "Bearer ak_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential, got: %v", err)
	}
}

func TestResolver_NoMasterConfigured(t *testing.T) {
	t.Parallel()

	signer := NewTokenSigner([]byte("resolver-test-secret"), 30*time.Minute)
	resolver := NewResolver("", signer, &fakeSessionStore{}, &fakeKeyStore{})

	// Empty master key disables the master path entirely.
	_, err := resolver.Resolve(context.Background(), "Bearer ")
	if !errors.Is(err, ErrMalformedCredential) {
		t.Errorf("Expected ErrMalformedCredential, got: %v", err)
	}
	_, err = resolver.Resolve(context.Background(), "Bearer "+testMasterKey)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Expected ErrInvalidCredential, got: %v", err)
	}
}

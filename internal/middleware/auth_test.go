package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/model"
)

type stubSessionStore struct {
	sessions map[string]*model.SessionToken
}

func (s *stubSessionStore) LookupSession(_ context.Context, jti string) (*model.SessionToken, error) {
	return s.sessions[jti], nil
}

type stubKeyStore struct {
	keys map[string][]*model.APIKey
}

func (s *stubKeyStore) LookupAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	return s.keys[prefix], nil
}

const middlewareMasterKey = "sk-master-middleware-test"

func newAuthMiddleware(keys *stubKeyStore) func(http.Handler) http.Handler {
	if keys == nil {
		keys = &stubKeyStore{}
	}
	signer := auth.NewTokenSigner([]byte("middleware-test-secret"), 30*time.Minute)
	resolver := auth.NewResolver(middlewareMasterKey, signer, &stubSessionStore{}, keys)
	return Auth(AuthConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Resolver: resolver,
	})
}

func echoPrincipal(t *testing.T, got **model.Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_MissingCredential(t *testing.T) {
	t.Parallel()

	var principal *model.Principal
	handler := newAuthMiddleware(nil)(echoPrincipal(t, &principal))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", rec.Code)
	}
	if principal != nil {
		t.Error("Handler should not run without a credential")
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response should be JSON: %v", err)
	}
	if body.Error.Code != "UNAUTHORIZED" {
		t.Errorf("Code = %q, want UNAUTHORIZED", body.Error.Code)
	}
}

func TestAuth_MasterKey(t *testing.T) {
	t.Parallel()

	var principal *model.Principal
	handler := newAuthMiddleware(nil)(echoPrincipal(t, &principal))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	req.Header.Set(AuthHeader, "Bearer "+middlewareMasterKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if principal == nil || principal.Kind != model.KindMaster {
		t.Errorf("Expected master principal, got: %+v", principal)
	}
}

func TestAuth_AuthorizationFallback(t *testing.T) {
	t.Parallel()

	var principal *model.Principal
	handler := newAuthMiddleware(nil)(echoPrincipal(t, &principal))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+middlewareMasterKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if principal == nil || principal.Kind != model.KindMaster {
		t.Errorf("Expected master principal, got: %+v", principal)
	}
}

func TestAuth_APIKey(t *testing.T) {
	t.Parallel()

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	keys := &stubKeyStore{keys: map[string][]*model.APIKey{
		generated.Prefix: {
			{ID: "key-1", UserID: "user-1", KeyHash: generated.Hash, IsActive: true},
		},
	}}

	var principal *model.Principal
	handler := newAuthMiddleware(keys)(echoPrincipal(t, &principal))

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set(AuthHeader, "Bearer "+generated.Plaintext)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if principal == nil || principal.Kind != model.KindAPIKey || principal.UserID != "user-1" {
		t.Errorf("Unexpected principal: %+v", principal)
	}
}

func TestAuth_InvalidCredentialUniformResponse(t *testing.T) {
	t.Parallel()

	handler := newAuthMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("Handler should not run")
	}))

	// Different failure classes must be byte-identical on the wire.
	var bodies []string
	for _, credential := range []string{
		"Bearer wrong-master-guess",
		"Bearer ak_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
		req.Header.Set(AuthHeader, credential)
		rec := httptest.NewRecorder()

		start := time.Now()
		handler.ServeHTTP(rec, req)
		elapsed := time.Since(start)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", rec.Code)
		}
		if elapsed < 200*time.Millisecond {
			t.Errorf("Failed auth returned in %v, want at least 200ms pad", elapsed)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Errorf("Rejection bodies differ:\n%s\n%s", bodies[0], bodies[1])
	}
}

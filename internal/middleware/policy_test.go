package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/model"
)

func requestWithPrincipal(kind model.CredentialKind) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	if kind == "" {
		return req
	}
	principal := &model.Principal{Kind: kind, UserID: "user-1"}
	if kind == model.KindMaster {
		principal = &model.Principal{Kind: kind, IsAdmin: true}
	}
	return req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
}

func TestRequirePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		middleware func(http.Handler) http.Handler
		kind       model.CredentialKind
		wantStatus int
	}{
		{"no principal", RequireCall(), "", http.StatusUnauthorized},
		{"call accepts api key", RequireCall(), model.KindAPIKey, http.StatusOK},
		{"call accepts master", RequireCall(), model.KindMaster, http.StatusOK},
		{"self rejects master", RequireSelf(), model.KindMaster, http.StatusForbidden},
		{"self accepts access token", RequireSelf(), model.KindAccessToken, http.StatusOK},
		{"admin rejects api key", RequireAdmin(), model.KindAPIKey, http.StatusForbidden},
		{"admin rejects access token", RequireAdmin(), model.KindAccessToken, http.StatusForbidden},
		{"admin accepts master", RequireAdmin(), model.KindMaster, http.StatusOK},
		{"profile accepts master", RequireProfile(), model.KindMaster, http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := tt.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestWithPrincipal(tt.kind))

			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

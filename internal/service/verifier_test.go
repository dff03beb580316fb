package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newVerifierForTest(googleURL, githubURL string) *HTTPVerifier {
	v := NewHTTPVerifier(2 * time.Second)
	if googleURL != "" {
		v.googleUserInfoURL = googleURL
	}
	if githubURL != "" {
		v.githubUserInfoURL = githubURL
	}
	return v
}

func TestHTTPVerifier_UnknownProvider(t *testing.T) {
	t.Parallel()

	v := NewHTTPVerifier(2 * time.Second)
	_, err := v.Verify(context.Background(), "twitter", "token")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Expected ErrUnknownProvider, got: %v", err)
	}
}

func TestHTTPVerifier_Google(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer provider-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"g-123","email":"a@example.com","name":"Ada","picture":"https://img/a.png"}`))
	}))
	defer srv.Close()

	v := newVerifierForTest(srv.URL, "")

	profile, err := v.Verify(context.Background(), ProviderGoogle, "provider-token")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if profile.Provider != ProviderGoogle || profile.Subject != "g-123" {
		t.Errorf("Unexpected profile: %+v", profile)
	}
	if profile.Email != "a@example.com" || profile.Name != "Ada" {
		t.Errorf("Unexpected profile: %+v", profile)
	}
}

func TestHTTPVerifier_Google_EmptySubject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"email":"a@example.com"}`))
	}))
	defer srv.Close()

	v := newVerifierForTest(srv.URL, "")

	_, err := v.Verify(context.Background(), ProviderGoogle, "provider-token")
	if !errors.Is(err, ErrProfileVerification) {
		t.Errorf("Expected ErrProfileVerification, got: %v", err)
	}
}

func TestHTTPVerifier_GitHub(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id":4242,"login":"octo","name":"","email":"o@example.com","avatar_url":"https://img/o.png"}`))
	}))
	defer srv.Close()

	v := newVerifierForTest("", srv.URL)

	profile, err := v.Verify(context.Background(), ProviderGitHub, "provider-token")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if profile.Subject != "4242" {
		t.Errorf("Subject = %q, want 4242", profile.Subject)
	}
	// Display name falls back to the login when unset.
	if profile.Name != "octo" {
		t.Errorf("Name = %q, want octo", profile.Name)
	}
}

func TestHTTPVerifier_ProviderRejectsToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := newVerifierForTest(srv.URL, srv.URL)

	for _, provider := range []string{ProviderGoogle, ProviderGitHub} {
		if _, err := v.Verify(context.Background(), provider, "bad-token"); !errors.Is(err, ErrProfileVerification) {
			t.Errorf("%s: expected ErrProfileVerification, got: %v", provider, err)
		}
	}
}

func TestHTTPVerifier_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	v := newVerifierForTest(srv.URL, "")

	_, err := v.Verify(context.Background(), ProviderGoogle, "provider-token")
	if !errors.Is(err, ErrProfileVerification) {
		t.Errorf("Expected ErrProfileVerification, got: %v", err)
	}
}

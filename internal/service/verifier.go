// Package service provides business logic for the application.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/anyllm/gateway/internal/model"
)

// Verifier errors.
var (
	ErrUnknownProvider     = errors.New("unknown identity provider")
	ErrProfileVerification = errors.New("profile verification failed")
)

// ProfileVerifier validates a provider access token and returns the
// normalized profile it belongs to. Implementations must never trust
// client-supplied profile fields without confirming token ownership.
type ProfileVerifier interface {
	Verify(ctx context.Context, provider, accessToken string) (*model.Profile, error)
}

// HTTPVerifier verifies tokens against provider userinfo endpoints.
type HTTPVerifier struct {
	client  *http.Client
	timeout time.Duration

	googleUserInfoURL string
	githubUserInfoURL string
}

// NewHTTPVerifier creates a verifier with the given per-call timeout.
func NewHTTPVerifier(timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		client:            &http.Client{Timeout: timeout},
		timeout:           timeout,
		googleUserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
		githubUserInfoURL: "https://api.github.com/user",
	}
}

// Supported provider names.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// Verify dispatches to the provider-specific verification.
func (v *HTTPVerifier) Verify(ctx context.Context, provider, accessToken string) (*model.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	switch provider {
	case ProviderGoogle:
		return v.verifyGoogle(ctx, accessToken)
	case ProviderGitHub:
		return v.verifyGitHub(ctx, accessToken)
	default:
		return nil, ErrUnknownProvider
	}
}

func (v *HTTPVerifier) verifyGoogle(ctx context.Context, accessToken string) (*model.Profile, error) {
	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}

	err := v.fetch(ctx, v.googleUserInfoURL, accessToken, &info)
	if err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrProfileVerification)
	}

	return &model.Profile{
		Provider:  ProviderGoogle,
		Subject:   info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
		Role:      model.RoleUser,
	}, nil
}

func (v *HTTPVerifier) verifyGitHub(ctx context.Context, accessToken string) (*model.Profile, error) {
	var info struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}

	err := v.fetch(ctx, v.githubUserInfoURL, accessToken, &info)
	if err != nil {
		return nil, err
	}
	if info.ID == 0 {
		return nil, fmt.Errorf("%w: empty subject", ErrProfileVerification)
	}

	name := info.Name
	if name == "" {
		name = info.Login
	}

	return &model.Profile{
		Provider:  ProviderGitHub,
		Subject:   strconv.FormatInt(info.ID, 10),
		Email:     info.Email,
		Name:      name,
		AvatarURL: info.AvatarURL,
		Role:      model.RoleUser,
	}, nil
}

func (v *HTTPVerifier) fetch(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrProfileVerification, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileVerification, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: provider returned %d", ErrProfileVerification, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProfileVerification, err)
	}

	return nil
}

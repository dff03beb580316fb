// Package model defines domain entities for the application.
package model

import "time"

// Provider identity roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ProviderIdentity links an external social identity to a gateway user.
// Unique on (provider, provider_user_id); one identity maps to exactly
// one user.
type ProviderIdentity struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	Provider             string         `json:"provider"`
	ProviderUserID       string         `json:"provider_user_id"`
	Role                 string         `json:"role"`
	Email                string         `json:"email,omitempty"`
	Name                 string         `json:"name,omitempty"`
	AvatarURL            string         `json:"avatar_url,omitempty"`
	AccessTokenExpiresAt *time.Time     `json:"access_token_expires_at,omitempty"`
	LastLoginAt          *time.Time     `json:"last_login_at,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Profile is the normalized result of external profile verification.
// How the provider token is verified is the verifier's concern; the
// pipeline only consumes this shape.
type Profile struct {
	Provider  string `json:"provider"`
	Subject   string `json:"subject"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Package model defines domain entities for the application.
package model

import "time"

// SessionToken represents one refresh-token family member. The access
// token derived from it is stateless; liveness is re-checked against
// this row via its ID (the JWT jti). Rotation retires the current row
// and inserts a successor carrying the same FamilyID, which is what
// makes reuse of a retired token detectable.
type SessionToken struct {
	ID               string          `json:"id"`
	FamilyID         string          `json:"family_id"`
	ParentID         *string         `json:"parent_id,omitempty"`
	UserID           string          `json:"user_id"`
	APIKeyID         string          `json:"api_key_id"`
	RefreshTokenHash string          `json:"-"` // Never serialize
	RefreshExpiresAt time.Time       `json:"refresh_expires_at"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
	LastUsedAt       *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Metadata         SessionMetadata `json:"metadata"`
}

// IsRevoked returns true if the session row has been retired.
func (s *SessionToken) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpired returns true if the refresh token lifetime has elapsed.
func (s *SessionToken) IsExpired(now time.Time) bool {
	return !s.RefreshExpiresAt.After(now)
}

// SessionMetadata carries device/client info supplied at login.
// Stored verbatim; never interpreted by the core.
type SessionMetadata struct {
	DeviceType string `json:"device_type,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	OS         string `json:"os,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	IP         string `json:"ip,omitempty"`
}

// TokenPair is a freshly minted access/refresh pair. Neither plaintext
// is retrievable after the response that carries it.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// LoginRequest is the social login payload.
type LoginRequest struct {
	Provider    string         `json:"provider"`
	AccessToken string         `json:"access_token"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	DeviceType  string         `json:"device_type,omitempty"`
	DeviceID    string         `json:"device_id,omitempty"`
	OS          string         `json:"os,omitempty"`
	AppVersion  string         `json:"app_version,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	IP          string         `json:"ip,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SessionMetadata extracts the device fields from a login request.
func (r *LoginRequest) SessionMetadata() SessionMetadata {
	return SessionMetadata{
		DeviceType: r.DeviceType,
		DeviceID:   r.DeviceID,
		OS:         r.OS,
		AppVersion: r.AppVersion,
		UserAgent:  r.UserAgent,
		IP:         r.IP,
	}
}

// LoginResponse is the social login result. APIKey plaintext is present
// only for new users, on this response, once.
type LoginResponse struct {
	IsNewUser bool                  `json:"is_new_user"`
	User      UserResponse          `json:"user"`
	Budget    BudgetInfo            `json:"budget"`
	APIKey    *APIKeyCreateResponse `json:"api_key,omitempty"`
	TokenPair
}

// RefreshRequest carries a refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revokes the session owning the given refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

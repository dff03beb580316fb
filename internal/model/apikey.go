// Package model defines domain entities for the application.
package model

import "time"

// APIKey represents a long-lived, user-scoped credential.
// The plaintext key exists only in the creation response; only the
// Argon2id hash is persisted.
type APIKey struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	KeyHash    string         `json:"-"` // Never serialize
	KeyPrefix  string         `json:"key_prefix"`
	Name       string         `json:"key_name,omitempty"`
	IsActive   bool           `json:"is_active"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IsExpired returns true if the key has an expiry in the past.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Usable reports whether the key may authenticate a request.
func (k *APIKey) Usable(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now)
}

// APIKeyCreateRequest is a request to create a new API key.
type APIKeyCreateRequest struct {
	Name      string     `json:"key_name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// APIKeyResponse is the key view without secrets.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"key_name,omitempty"`
	KeyPrefix  string     `json:"key_prefix"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToResponse converts an APIKey to APIKeyResponse.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		IsActive:   k.IsActive,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// APIKeyCreateResponse includes the plaintext key (shown only once).
type APIKeyCreateResponse struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"` // Plaintext - display once only!
	Name      string     `json:"key_name,omitempty"`
	KeyPrefix string     `json:"key_prefix"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

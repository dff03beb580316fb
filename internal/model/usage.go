// Package model defines domain entities for the application.
package model

import "time"

// Usage log statuses.
const (
	UsageStatusSuccess = "success"
	UsageStatusError   = "error"
)

// UsageLog represents a single accounted request.
type UsageLog struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	UserID   string `json:"user_id"`
	APIKeyID string `json:"api_key_id,omitempty"`

	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`
	Endpoint string `json:"endpoint"`

	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Cost             float64 `json:"cost"`

	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`  // Event time
	CreatedAt time.Time `json:"created_at"` // DB insertion time
}

// UsageEventRequest is a usage event submitted over HTTP by a metering
// caller. UserID is only honored for master-key callers; tenant
// credentials always report against themselves.
type UsageEventRequest struct {
	UserID           string     `json:"user_id,omitempty"`
	Model            string     `json:"model"`
	Provider         string     `json:"provider,omitempty"`
	Endpoint         string     `json:"endpoint"`
	PromptTokens     int64      `json:"prompt_tokens"`
	CompletionTokens int64      `json:"completion_tokens"`
	TotalTokens      int64      `json:"total_tokens"`
	Cost             float64    `json:"cost"`
	Status           string     `json:"status,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

// UsageWindow is an aggregate over a time window.
type UsageWindow struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// UsageResponse is the usage API response: fixed windows plus the most
// recent raw entries.
type UsageResponse struct {
	UserID      string                 `json:"user_id"`
	Windows     map[string]UsageWindow `json:"usage"`
	RecentUsage []UsageLog             `json:"recent_usage"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// ProfileResponse combines identity, budget and usage for a user.
type ProfileResponse struct {
	Profile ProfileInfo            `json:"profile"`
	Budget  *BudgetInfo            `json:"budget,omitempty"`
	Usage   map[string]UsageWindow `json:"usage"`
	Recent  []UsageLog             `json:"recent_usage"`
}

// ProfileInfo is the merged user/identity profile view.
type ProfileInfo struct {
	UserID         string         `json:"user_id"`
	Provider       string         `json:"provider,omitempty"`
	ProviderUserID string         `json:"provider_user_id,omitempty"`
	Alias          string         `json:"alias,omitempty"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	AvatarURL      string         `json:"avatar_url,omitempty"`
	Blocked        bool           `json:"blocked"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	LastLoginAt    *time.Time     `json:"last_login_at,omitempty"`
}

// Package model defines domain entities for the application.
package model

import "time"

// DefaultBudgetDuration is the budget window applied when a new user's
// budget does not specify one.
const DefaultBudgetDuration = 30 * 24 * time.Hour

// Budget is a spending policy. Each user owns exactly one budget row,
// created atomically with the user at first login.
type Budget struct {
	ID          string    `json:"id"`
	MaxBudget   *float64  `json:"max_budget,omitempty"` // nil = unlimited
	DurationSec int64     `json:"budget_duration_sec"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Duration returns the budget window as a time.Duration, falling back
// to the default when unset.
func (b *Budget) Duration() time.Duration {
	if b.DurationSec <= 0 {
		return DefaultBudgetDuration
	}
	return time.Duration(b.DurationSec) * time.Second
}

// Unlimited reports whether the budget has no spending cap.
func (b *Budget) Unlimited() bool {
	return b.MaxBudget == nil
}

// BudgetResetLog records one budget window rollover for auditing.
type BudgetResetLog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	BudgetID    string    `json:"budget_id"`
	SpendBefore float64   `json:"spend_before"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ResetAt     time.Time `json:"reset_at"`
}

// BudgetUpdateRequest carries administrative budget edits. Nil fields
// are left untouched.
type BudgetUpdateRequest struct {
	MaxBudget   *float64 `json:"max_budget,omitempty"`
	DurationSec *int64   `json:"budget_duration_sec,omitempty"`
}

// BudgetInfo is the combined budget/spend view returned to callers.
type BudgetInfo struct {
	BudgetID          string     `json:"budget_id"`
	MaxBudget         *float64   `json:"max_budget,omitempty"`
	DurationSec       int64      `json:"budget_duration_sec"`
	Spend             float64    `json:"spend"`
	BudgetStartedAt   *time.Time `json:"budget_started_at,omitempty"`
	NextBudgetResetAt *time.Time `json:"next_budget_reset_at,omitempty"`
}
